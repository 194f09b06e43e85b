// Package upload stores files sent by chat clients and serves them back so
// that file messages can carry a retrievable URL.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNoFile is returned when the request carries no file part.
	ErrNoFile = errors.New("no file provided")
	// ErrEmptyFilename is returned when the file part has no filename.
	ErrEmptyFilename = errors.New("empty filename")
	// ErrFileTooLarge is returned when the file exceeds the store's size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Result describes a stored file.
type Result struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	// StoredName is the file name on disk and the last segment of URL.
	StoredName string `json:"-"`
}

// Store writes uploads under a single directory.
type Store struct {
	dir       string
	maxSize   int64
	urlPrefix string
}

// NewStore creates dir if needed. Files larger than maxSize are rejected;
// URLs are built as urlPrefix + stored name.
func NewStore(dir string, maxSize int64, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxSize: maxSize, urlPrefix: urlPrefix}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the per-file size limit.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save copies r to a new file named after a random id and the base of
// filename.
func (s *Store) Save(filename string, r io.Reader) (Result, error) {
	name := filepath.Base(filename)
	if filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return Result{}, ErrEmptyFilename
	}

	stored := uuid.NewString() + "_" + name
	path := filepath.Join(s.dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", stored, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("write %s: %w", stored, err)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("detect type of %s: %w", stored, err)
	}

	return Result{
		URL:        s.urlPrefix + stored,
		Name:       name,
		Size:       n,
		MimeType:   mime.String(),
		StoredName: stored,
	}, nil
}

// Open returns the stored file with the given name.
func (s *Store) Open(stored string) (*os.File, error) {
	if stored == "" || stored != filepath.Base(stored) || stored == "." || stored == ".." {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.dir, stored))
}
