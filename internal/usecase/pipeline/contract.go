package pipeline

import (
	"context"
	"io"

	"github.com/docuchat/docuchat/internal/domain"
)

// DocumentStore holds uploaded PDFs and extracts their text.
type DocumentStore interface {
	Save(ctx context.Context, filename string, r io.Reader) error
	Exists(filename string) bool
	ReadText(ctx context.Context, filename string) (string, error)
}

// Splitter cuts text into overlapping chunks.
type Splitter interface {
	Split(text string) []string
}

// Collections manages the single active vector collection.
type Collections interface {
	Rebuild(ctx context.Context, chunks []string, vectors [][]float32) (string, error)
	Active(ctx context.Context) (string, error)
	Query(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error)
}
