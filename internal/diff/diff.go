// Package diff computes line-based unified diffs between two versions of a file.
// The edit script is a shortest one (Myers), expressed as go-difflib opcodes;
// rendering produces classic unified patches (---/+++ headers, @@ hunks, lines
// prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of context lines around each hunk.
const DefaultContext = 3

const noNewlineMarker = "\\ No newline at end of file\n"

// Options controls patch generation behavior.
type Options struct {
	// Context controls the number of context lines in unified hunks.
	// If 0, DefaultContext is used.
	Context int
}

// Hunk describes the line ranges covered by one @@ block.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// Range is an inclusive, 1-based span of lines in the new text.
type Range struct {
	Start int
	End   int
}

// Overlaps reports whether r shares at least one line with [start, end].
func (r Range) Overlaps(start, end int) bool {
	return r.Start <= end && start <= r.End
}

// Result is the outcome of comparing two texts.
type Result struct {
	// Text is the unified diff. Empty when HasChanges is false.
	Text string
	// HasChanges is false iff the texts are identical line for line.
	HasChanges bool
	// LinesChanged counts inserted plus deleted lines; context is not counted.
	LinesChanged int
	Hunks        []Hunk
	// ChangedLines lists the new-text lines touched by the edit. A pure
	// deletion marks the line that follows the deletion point.
	ChangedLines []Range
}

// Compute diffs oldText against newText using default options.
func Compute(oldText, newText, label string) Result {
	return ComputeWithOptions(oldText, newText, label, Options{})
}

// ComputeWithOptions diffs oldText against newText. It never fails; any two
// strings produce a well-formed Result.
func ComputeWithOptions(oldText, newText, label string, opt Options) Result {
	ctx := opt.Context
	if ctx <= 0 {
		ctx = DefaultContext
	}

	a := splitLinesKeepNL(oldText)
	b := splitLinesKeepNL(newText)

	codes := editScript(a, b)

	var res Result
	for _, op := range codes {
		if op.Tag == 'e' {
			continue
		}
		res.LinesChanged += (op.I2 - op.I1) + (op.J2 - op.J1)
		res.ChangedLines = append(res.ChangedLines, changedRange(op, len(b)))
	}
	if res.LinesChanged == 0 {
		return Result{}
	}
	res.HasChanges = true

	fromFile := "a/" + label
	if len(a) == 0 {
		fromFile = "/dev/null"
	}
	toFile := "b/" + label
	if len(b) == 0 {
		toFile = "/dev/null"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", fromFile, toFile)

	for _, group := range groupOpCodes(codes, ctx) {
		first, last := group[0], group[len(group)-1]
		oldStart, oldLen := unifiedRange(first.I1, last.I2)
		newStart, newLen := unifiedRange(first.J1, last.J2)
		res.Hunks = append(res.Hunks, Hunk{OldStart: oldStart, OldLines: oldLen, NewStart: newStart, NewLines: newLen})

		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", formatRange(oldStart, oldLen), formatRange(newStart, newLen))
		for _, c := range group {
			if c.Tag == 'e' {
				writeLines(&sb, ' ', a[c.I1:c.I2])
				continue
			}
			if c.Tag == 'r' || c.Tag == 'd' {
				writeLines(&sb, '-', a[c.I1:c.I2])
			}
			if c.Tag == 'r' || c.Tag == 'i' {
				writeLines(&sb, '+', b[c.J1:c.J2])
			}
		}
	}

	res.Text = sb.String()
	return res
}

// CountLines returns the number of lines in text as the diff engine sees
// them: a final line without a terminator still counts, and "" has zero lines.
func CountLines(text string) int {
	return len(splitLinesKeepNL(text))
}

// SplitLines splits text into lines, keeping each line's "\n".
func SplitLines(text string) []string {
	return splitLinesKeepNL(text)
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	// SplitAfter yields a trailing "" when s ends with "\n".
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(sb *strings.Builder, prefix byte, lines []string) {
	for _, line := range lines {
		sb.WriteByte(prefix)
		sb.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			sb.WriteString("\n")
			sb.WriteString(noNewlineMarker)
		}
	}
}

// unifiedRange converts a half-open index span to unified-diff start/length.
func unifiedRange(start, stop int) (int, int) {
	length := stop - start
	beginning := start + 1
	if length == 0 {
		// Empty ranges begin at the line just before the range.
		beginning--
	}
	return beginning, length
}

func formatRange(start, length int) string {
	if length == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, length)
}

func changedRange(op difflib.OpCode, newLen int) Range {
	if op.J2 > op.J1 {
		return Range{Start: op.J1 + 1, End: op.J2}
	}
	line := op.J1 + 1
	if line > newLen {
		line = newLen
	}
	if line < 1 {
		line = 1
	}
	return Range{Start: line, End: line}
}
