package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/glommer/cachebro/internal/diff"
)

// ReadResult is what a read hands back to the caller.
type ReadResult struct {
	Path string `json:"path"`
	// Cached is true when Content is a summary or a diff rather than the file.
	Cached  bool   `json:"cached"`
	Content string `json:"content"`
	// Diff repeats Content when the answer is a unified diff.
	Diff         string `json:"diff,omitempty"`
	LinesChanged int    `json:"lines_changed"`
	TotalLines   int    `json:"total_lines"`
	Hash         string `json:"hash"`
	TokensSaved  int    `json:"tokens_saved"`
}

// BatchResult is one entry of ReadFiles.
type BatchResult struct {
	Path   string
	Result *ReadResult
	Err    error
}

// Stats reports how much the cache has saved.
type Stats struct {
	SessionID          string `json:"session_id"`
	FilesTracked       int    `json:"files_tracked"`
	TokensSaved        int64  `json:"tokens_saved"`
	SessionTokensSaved int64  `json:"session_tokens_saved"`
}

// PathStatus describes what the cache holds for one path.
type PathStatus struct {
	Path     string        `json:"path"`
	Versions []VersionInfo `json:"versions"`
	// SeenHash is the version the session last received in full; empty when
	// it has none.
	SeenHash string     `json:"seen_hash,omitempty"`
	SeenAt   *time.Time `json:"seen_at,omitempty"`
}

// VersionInfo is the metadata of one retained version.
type VersionInfo struct {
	Hash      string    `json:"hash"`
	Lines     int       `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
}

// HashContent returns the hex sha256 digest used as a version identifier.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// window is a 1-based inclusive line range of the current content.
type window struct {
	start int
	end   int
	text  string
}

// newWindow selects lines [offset, offset+limit) from lines. offset < 1 means
// the first line; limit < 1 means through the end of the file. A window that
// starts past the last line is empty (start > end).
func newWindow(lines []string, offset, limit int) *window {
	if offset < 1 {
		offset = 1
	}
	total := len(lines)
	if offset > total {
		return &window{start: offset, end: offset - 1}
	}
	end := total
	if limit > 0 && offset+limit-1 < total {
		end = offset + limit - 1
	}
	return &window{
		start: offset,
		end:   end,
		text:  strings.Join(lines[offset-1:end], ""),
	}
}

func (w *window) empty() bool {
	return w.start > w.end
}

// touchedBy reports whether any changed range falls inside the window.
func (w *window) touchedBy(changed []diff.Range) bool {
	if w.empty() {
		return false
	}
	for _, r := range changed {
		if r.Overlaps(w.start, w.end) {
			return true
		}
	}
	return false
}

func (w *window) describe() string {
	if w.empty() {
		return fmt.Sprintf("lines %d+ (past end of file)", w.start)
	}
	return fmt.Sprintf("lines %d-%d", w.start, w.end)
}

func unchangedSummary(totalLines, saved int) string {
	return fmt.Sprintf("[cachebro: unchanged, %d lines, %d tokens saved]", totalLines, saved)
}

func unchangedWindowSummary(w *window, totalLines, saved int) string {
	return fmt.Sprintf("[cachebro: unchanged, %s of %d, %d tokens saved]", w.describe(), totalLines, saved)
}

func changedElsewhereSummary(w *window, linesChanged, saved int) string {
	return fmt.Sprintf("[cachebro: %s unchanged, %d lines changed elsewhere, %d tokens saved]", w.describe(), linesChanged, saved)
}
