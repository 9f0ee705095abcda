package collection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/docuchat/docuchat/internal/db"
	"github.com/docuchat/docuchat/internal/domain"
)

// store is the slice of db.Store the redis backend needs.
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

const (
	fieldText   = "text"
	fieldVector = "vector"
	fieldDim    = "dim"
	writeBatch  = 500
)

// Redis keeps each collection as an FT index over HASH keys
// <prefix>chunk:<id>:<n>, one key per chunk.
type Redis struct {
	store  store
	prefix string
}

var _ Backend = (*Redis)(nil)

// NewRedis creates a backend whose keys live under prefix.
func NewRedis(s store, prefix string) *Redis {
	return &Redis{store: s, prefix: prefix}
}

// Name returns "redis".
func (r *Redis) Name() string { return "redis" }

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error { return r.store.Ping(ctx) }

// Create writes the chunk hashes, then builds the index over them.
func (r *Redis) Create(ctx context.Context, id string, dim int, entries []domain.Entry) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive: %w", domain.ErrValidation)
	}

	def := &db.IndexDefinition{
		Name:     id,
		Prefixes: []string{r.chunkPrefix(id)},
		Fields: []db.IndexField{
			{Name: fieldText, Type: db.IndexFieldText},
			{Name: fieldVector, Type: db.IndexFieldVector, VectorDim: dim,
				VectorAlgo: db.VectorFlat, VectorDistance: db.DistanceCosine},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index %s: %v: %w", id, err, domain.ErrValidation)
	}

	dimStr := strconv.Itoa(dim)
	for start := 0; start < len(entries); start += writeBatch {
		end := min(start+writeBatch, len(entries))
		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, db.HashSetItem{
				Key: r.chunkPrefix(id) + strconv.Itoa(i),
				Fields: map[string]string{
					fieldText:   entries[i].Text,
					fieldVector: db.EncodeVector(entries[i].Vector),
					fieldDim:    dimStr,
				},
			})
		}
		if err := r.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Search runs a KNN query against the collection's index.
func (r *Redis) Search(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    id,
		VectorField:  fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldText},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) || isDimensionError(err) {
			return nil, fmt.Errorf("collection %s: %v: %w", id, err, domain.ErrCorrupted)
		}
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]domain.Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		hits = append(hits, domain.Hit{Text: e.Fields[fieldText], Score: e.Score})
	}
	return hits, nil
}

// Wipe drops every collection index and deletes all chunk keys under the prefix.
func (r *Redis) Wipe(ctx context.Context) error {
	names, err := r.store.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, domain.CollectionPrefix) {
			continue
		}
		if err := r.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}

	keys, err := r.store.Scan(ctx, r.prefix+"chunk:*")
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	for start := 0; start < len(keys); start += writeBatch {
		end := min(start+writeBatch, len(keys))
		if err := r.store.Del(ctx, keys[start:end]...); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
	}
	return nil
}

func (r *Redis) chunkPrefix(id string) string {
	return r.prefix + "chunk:" + id + ":"
}

// isDimensionError matches the server's complaint about a query blob of the wrong size.
func isDimensionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "dimension") || strings.Contains(msg, "blob size")
}
