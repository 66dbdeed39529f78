package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem defines the filesystem operations the read tools need.
// This allows mocking the os package for testing.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem is the default implementation that uses the os package.
// It also satisfies cache.FileReader.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (fs *OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (fs *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// ResolvePath joins a relative path onto repoRoot and rejects anything that
// ends up outside it. With an empty repoRoot the path is only cleaned.
func ResolvePath(repoRoot, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if repoRoot == "" {
		return filepath.Abs(path)
	}

	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", err
	}
	filePath := path
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(root, filePath)
	}
	filePath = filepath.Clean(filePath)

	rel, err := filepath.Rel(root, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside repository root", path)
	}
	return filePath, nil
}
