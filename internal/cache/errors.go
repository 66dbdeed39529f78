package cache

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound means the path did not exist when it was read.
	ErrNotFound = errors.New("file not found")
	// ErrAccessDenied means the path exists but could not be read.
	ErrAccessDenied = errors.New("access denied")
	// ErrStorage means the backing database rejected a read or write.
	ErrStorage = errors.New("storage failure")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache is closed")
)

// PathError reports a file that could not be read. Kind is ErrNotFound or
// ErrAccessDenied; both Kind and the underlying error match errors.Is.
type PathError struct {
	Path string
	Kind error
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *PathError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StorageError wraps a database failure with the operation that hit it.
// It matches ErrStorage.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, ErrStorage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorage, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func classifyReadError(path string, err error) error {
	kind := ErrAccessDenied
	if errors.Is(err, fs.ErrNotExist) {
		kind = ErrNotFound
	}
	return &PathError{Path: path, Kind: kind, Err: err}
}

func storageError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	// Already classified (e.g. ErrClosed from the init gate).
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}
