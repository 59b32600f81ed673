package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"
)

var (
	// ErrExist is returned by Create when the name is already taken.
	ErrExist = fs.ErrExist
	// ErrNotExist is returned by Open for unknown names.
	ErrNotExist = fs.ErrNotExist
	// ErrInvalidName rejects names that are not a single plain path element.
	ErrInvalidName = errors.New("invalid stored name")
)

// Object is an opened stored file.
type Object struct {
	Body    io.ReadCloser
	Size    int64
	ModTime time.Time
}

// ObjectInfo describes a stored file without opening it.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Backend is a write-once blob area addressed by name.
type Backend interface {
	// Create writes r under name and fails with ErrExist instead of overwriting.
	Create(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (*Object, error)
	// Delete removes name; missing names are not an error.
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// ValidName reports whether name can address a stored file.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return !strings.HasPrefix(name, ".")
}
