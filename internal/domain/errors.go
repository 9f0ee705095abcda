package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing uploaded file.
	ErrNotFound = errors.New("not found")
	// ErrNotIndexed signals a query issued before any document was indexed.
	ErrNotIndexed = errors.New("nothing indexed yet")
	// ErrCorrupted signals unreadable or dimension-mismatched vector data.
	// The collection manager wipes the vector store before returning it.
	ErrCorrupted = errors.New("vector store corrupted")
	// ErrValidation signals a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrExtraction signals a document whose text could not be extracted.
	ErrExtraction = errors.New("text extraction failed")
	// ErrCompletionProvider signals a completion API failure (auth, network, rate limit).
	ErrCompletionProvider = errors.New("completion provider error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// FileNotFoundError wraps ErrNotFound with the filename the caller asked for.
type FileNotFoundError struct {
	Filename string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %s: %s", e.Filename, ErrNotFound.Error())
}

func (e *FileNotFoundError) Unwrap() error { return ErrNotFound }

// NewFileNotFound creates a not-found error for filename.
func NewFileNotFound(filename string) error {
	return &FileNotFoundError{Filename: filename}
}
