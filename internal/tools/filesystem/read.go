package filesystem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/engine"
)

// Reader is the part of *cache.Cache the read tools call.
type Reader interface {
	ReadFile(ctx context.Context, path string) (*cache.ReadResult, error)
	ReadFileRange(ctx context.Context, path string, offset, limit int) (*cache.ReadResult, error)
	ReadFileFull(ctx context.Context, path string) (*cache.ReadResult, error)
	ReadFiles(ctx context.Context, paths []string) []cache.BatchResult
}

type readArgs struct {
	path   string
	offset int
	limit  int
	force  bool
}

// resolveFile maps a tool path onto the repository and rejects directories.
func resolveFile(fs FileSystem, repoRoot, path string) (string, error) {
	filePath, err := ResolvePath(repoRoot, path)
	if err != nil {
		return "", err
	}
	if info, err := fs.Stat(filePath); err == nil && info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return filePath, nil
}

func readOne(ctx context.Context, fs FileSystem, r Reader, repoRoot string, a readArgs) (*cache.ReadResult, error) {
	filePath, err := resolveFile(fs, repoRoot, a.path)
	if err != nil {
		return nil, err
	}

	switch {
	case a.force:
		return r.ReadFileFull(ctx, filePath)
	case a.offset > 0 || a.limit > 0:
		return r.ReadFileRange(ctx, filePath, a.offset, a.limit)
	default:
		return r.ReadFile(ctx, filePath)
	}
}

func readFileImpl(ctx context.Context, fs FileSystem, r Reader, repoRoot string, a readArgs) (string, error) {
	res, err := readOne(ctx, fs, r, repoRoot, a)
	if err != nil {
		return "", err
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// batchEntry is one element of the read_files result array.
type batchEntry struct {
	Path   string            `json:"path"`
	Result *cache.ReadResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func readFilesImpl(ctx context.Context, fs FileSystem, r Reader, repoRoot string, paths []string) (string, error) {
	entries := make([]batchEntry, len(paths))
	var resolved []string
	var slots []int
	for i, p := range paths {
		entries[i].Path = p
		filePath, err := resolveFile(fs, repoRoot, p)
		if err != nil {
			entries[i].Error = err.Error()
			continue
		}
		resolved = append(resolved, filePath)
		slots = append(slots, i)
	}

	for k, br := range r.ReadFiles(ctx, resolved) {
		entry := &entries[slots[k]]
		if br.Err != nil {
			entry.Error = br.Err.Error()
		} else {
			entry.Result = br.Result
		}
	}

	resultJSON, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewReadFileTool creates an engine.Tool that reads one file through the cache.
func NewReadFileTool(repoRoot string, r Reader) engine.Tool {
	fs := NewOSFileSystem()
	return engine.Tool{
		Name: "read_file",
		Description: "Reads a file. The first read returns the full content; later reads return " +
			"a short confirmation when the file is unchanged or a unified diff when it changed. " +
			"Use offset/limit for a line window and force=true to get the full content again.",
		SchemaJSON: `{"type":"object","properties":{` +
			`"path":{"type":"string","description":"File path, absolute or relative to the repository root"},` +
			`"offset":{"type":"integer","minimum":1,"description":"First line to read (1-based)"},` +
			`"limit":{"type":"integer","minimum":1,"description":"Number of lines to read"},` +
			`"force":{"type":"boolean","description":"Return the full content even if it was read before"}` +
			`},"required":["path"],"additionalProperties":false}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			force, _ := args["force"].(bool)
			return readFileImpl(ctx, fs, r, repoRoot, readArgs{
				path:   path,
				offset: intArg(args, "offset"),
				limit:  intArg(args, "limit"),
				force:  force,
			})
		},
		Metadata: engine.ToolMetadata{
			Version:  "1.0.0",
			Category: "filesystem",
			Tags:     []string{"read-only", "cached"},
		},
	}
}

// NewReadFilesTool creates an engine.Tool that reads several files at once.
func NewReadFilesTool(repoRoot string, r Reader) engine.Tool {
	fs := NewOSFileSystem()
	return engine.Tool{
		Name:        "read_files",
		Description: "Reads several files through the cache. Each entry carries either a result or an error.",
		SchemaJSON: `{"type":"object","properties":{` +
			`"paths":{"type":"array","items":{"type":"string"},"minItems":1,"description":"File paths to read"}` +
			`},"required":["paths"],"additionalProperties":false}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			raw, ok := args["paths"].([]any)
			if !ok {
				return "", fmt.Errorf("paths must be an array")
			}
			paths := make([]string, 0, len(raw))
			for _, v := range raw {
				s, ok := v.(string)
				if !ok {
					return "", fmt.Errorf("paths must contain strings")
				}
				paths = append(paths, s)
			}
			return readFilesImpl(ctx, fs, r, repoRoot, paths)
		},
		Metadata: engine.ToolMetadata{
			Version:  "1.0.0",
			Category: "filesystem",
			Tags:     []string{"read-only", "cached", "batch"},
		},
	}
}

// intArg reads a numeric argument decoded from JSON. Missing means 0.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
