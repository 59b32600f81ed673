package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"strings"
	"time"
)

// PublicPrefix is the URL path under which stored files are served.
const PublicPrefix = "/uploads/"

const saveAttempts = 3

// ErrTooLarge is returned when content exceeds the configured limit.
var ErrTooLarge = errors.New("file too large")

// StoredFile is the result of a successful Save.
type StoredFile struct {
	Name string
	Size int64
}

// Store assigns unique names to uploads and keeps them in a Backend.
type Store struct {
	backend  Backend
	maxBytes int64
	now      func() time.Time
}

// NewStore wraps backend. maxBytes <= 0 disables the size limit.
func NewStore(backend Backend, maxBytes int64) *Store {
	return &Store{backend: backend, maxBytes: maxBytes, now: time.Now}
}

// Backend exposes the underlying blob area.
func (s *Store) Backend() Backend {
	return s.backend
}

// MaxBytes is the per-file limit, 0 when unlimited.
func (s *Store) MaxBytes() int64 {
	if s.maxBytes < 0 {
		return 0
	}
	return s.maxBytes
}

// URL is the public path of a stored name.
func URL(name string) string {
	return PublicPrefix + name
}

// extension returns the original extension unchanged. An extension that
// could not be part of a single path element is dropped.
func extension(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	if strings.ContainsAny(ext, `/\`) || strings.ContainsRune(ext, 0) {
		return ""
	}
	return ext
}

func randomSuffix() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%09d", n.Int64()), nil
}

// NewName returns <unix-millis>-<9 random digits><ext>.
func (s *Store) NewName(originalName string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), suffix, extension(originalName)), nil
}

// Save writes r under a fresh name. The reader is consumed once, so a name
// collision is detected before any byte is read and retried with a new name.
func (s *Store) Save(ctx context.Context, r io.Reader, originalName string) (StoredFile, error) {
	src := r
	var limited *io.LimitedReader
	if s.maxBytes > 0 {
		limited = &io.LimitedReader{R: r, N: s.maxBytes + 1}
		src = limited
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		name, err := s.NewName(originalName)
		if err != nil {
			return StoredFile{}, err
		}
		if obj, err := s.backend.Open(ctx, name); err == nil {
			_ = obj.Body.Close()
			continue
		}

		n, err := s.backend.Create(ctx, name, src)
		if errors.Is(err, ErrExist) {
			// lost a race after the probe; the content is gone
			return StoredFile{}, fmt.Errorf("store %s: %w", name, err)
		}
		if err != nil {
			return StoredFile{}, err
		}
		if limited != nil && n > s.maxBytes {
			_ = s.backend.Delete(ctx, name)
			return StoredFile{}, ErrTooLarge
		}
		return StoredFile{Name: name, Size: n}, nil
	}
	return StoredFile{}, fmt.Errorf("could not allocate a unique name after %d attempts: %w", saveAttempts, ErrExist)
}

// Open returns the stored object for name.
func (s *Store) Open(ctx context.Context, name string) (*Object, error) {
	return s.backend.Open(ctx, name)
}

// Delete removes stored names, returning the first error encountered.
func (s *Store) Delete(ctx context.Context, names ...string) error {
	var first error
	for _, n := range names {
		if err := s.backend.Delete(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
