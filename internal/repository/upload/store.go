// Package upload stores raw uploaded documents on disk, keyed by filename.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/domain"
	logpkg "github.com/docuchat/docuchat/internal/logger"
)

// Store keeps uploaded files under a single directory.
type Store struct {
	dir       string
	extractor TextExtractor
}

// New creates the upload directory if needed and returns a Store.
func New(dir string, extractor TextExtractor) (*Store, error) {
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, extractor: extractor}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r to filename, overwriting an existing file of the same name.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move upload into place: %w", err)
	}

	logpkg.FromContext(ctx).Debug("Stored upload",
		zap.String("filename", filename),
		zap.Int64("bytes", n),
	)
	return nil
}

// Exists reports whether filename has been uploaded.
func (s *Store) Exists(filename string) bool {
	path, err := s.path(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadText extracts the text of an uploaded file.
func (s *Store) ReadText(ctx context.Context, filename string) (string, error) {
	path, err := s.path(filename)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NewFileNotFound(filename)
		}
		return "", fmt.Errorf("read upload: %w", err)
	}

	text, err := s.extractor.ExtractText(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}

	logpkg.FromContext(ctx).Debug("Extracted text",
		zap.String("filename", filename),
		zap.Int("bytes", len(data)),
		zap.Int("text_len", len(text)),
	)
	return text, nil
}

// path confines filename to the upload directory.
func (s *Store) path(filename string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." || base == "" {
		return "", fmt.Errorf("%w: invalid filename %q", domain.ErrValidation, filename)
	}
	return filepath.Join(s.dir, base), nil
}
