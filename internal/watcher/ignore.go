package watcher

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are directories and files whose changes are never
// reported.
var DefaultIgnorePatterns = []string{
	".git",
	".cachebro",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	".idea",
	".vscode",
	".DS_Store",
}

// newIgnoreMatcher compiles the default patterns, any extra patterns and the
// root .gitignore of each root.
func newIgnoreMatcher(roots []string, extra []string) *gitignore.GitIgnore {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(extra))
	patterns = append(patterns, DefaultIgnorePatterns...)
	patterns = append(patterns, extra...)
	for _, root := range roots {
		if lines, err := readGitignoreLines(filepath.Join(root, ".gitignore")); err == nil {
			patterns = append(patterns, lines...)
		}
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

func readGitignoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
