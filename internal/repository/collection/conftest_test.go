package collection

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/db"
	"github.com/docuchat/docuchat/internal/domain"
)

// mockStore implements the redis backend's consumer interface.
type mockStore struct {
	pingFn        func(ctx context.Context) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	delFn         func(ctx context.Context, keys ...string) error
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	listIndexesFn func(ctx context.Context) ([]string, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) ListIndexes(ctx context.Context) ([]string, error) {
	if m.listIndexesFn != nil {
		return m.listIndexesFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

// fakeBackend records calls and serves canned results.
type fakeBackend struct {
	created  []string
	wipes    int
	searchFn func(id string, vector []float32, k int) ([]domain.Hit, error)
	createFn func(id string, dim int, entries []domain.Entry) error
}

func (f *fakeBackend) Name() string                 { return "fake" }
func (f *fakeBackend) Ping(_ context.Context) error { return nil }

func (f *fakeBackend) Create(_ context.Context, id string, dim int, entries []domain.Entry) error {
	if f.createFn != nil {
		if err := f.createFn(id, dim, entries); err != nil {
			return err
		}
	}
	f.created = append(f.created, id)
	return nil
}

func (f *fakeBackend) Search(_ context.Context, id string, vector []float32, k int) ([]domain.Hit, error) {
	if f.searchFn != nil {
		return f.searchFn(id, vector, k)
	}
	return nil, nil
}

func (f *fakeBackend) Wipe(_ context.Context) error {
	f.wipes++
	return nil
}

func newTestManager(t *testing.T, b Backend) *Manager {
	t.Helper()
	m, err := NewManager(b, t.TempDir(), 4, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}
