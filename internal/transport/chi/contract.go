package chi

import (
	"context"
	"io"

	healthuc "github.com/docuchat/docuchat/internal/usecase/health"
)

// Pipeline covers upload, indexing and question answering.
type Pipeline interface {
	Ingest(ctx context.Context, filename string, r io.Reader) error
	Index(ctx context.Context, filename string) (int, error)
	Ask(ctx context.Context, question string) (string, error)
}

// Summarizer extracts key points from an uploaded document.
type Summarizer interface {
	ExtractPoints(ctx context.Context, filename string) ([]string, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
