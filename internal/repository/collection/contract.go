package collection

import (
	"context"

	"github.com/docuchat/docuchat/internal/domain"
)

// Backend persists vector collections. At most one collection is expected to
// exist at a time; Wipe removes every collection the backend owns.
//
// Search returns hits nearest first. A missing collection, unreadable data or a
// query vector of the wrong dimension must be reported as domain.ErrCorrupted.
type Backend interface {
	Name() string
	Create(ctx context.Context, id string, dim int, entries []domain.Entry) error
	Search(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error)
	Wipe(ctx context.Context) error
	Ping(ctx context.Context) error
}
