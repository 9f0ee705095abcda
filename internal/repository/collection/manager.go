package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/metrics"
)

// PointerFile names the active collection inside the vector directory.
const PointerFile = "current_collection.txt"

// Manager owns the single active collection and the pointer file naming it.
// Rebuild holds the write lock across wipe, create and pointer write; queries
// share the read lock.
type Manager struct {
	mu      sync.RWMutex
	backend Backend
	dir     string
	dim     int // used when a rebuild carries no vectors
	lastID  int64
	now     func() time.Time
	logger  *zap.Logger
}

// NewManager creates the vector directory if needed.
// dim is the embedder's output dimension.
func NewManager(backend Backend, dir string, dim int, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	m := &Manager{
		backend: backend,
		dir:     dir,
		dim:     dim,
		now:     time.Now,
		logger:  logger,
	}
	if id, err := m.readPointer(); err == nil {
		m.lastID, _ = parseID(id)
	}
	return m, nil
}

// Backend returns the storage backend name.
func (m *Manager) Backend() string { return m.backend.Name() }

// Ping checks the backend.
func (m *Manager) Ping(ctx context.Context) error { return m.backend.Ping(ctx) }

// Rebuild replaces all vector data with a new collection built from chunks and
// their vectors, then points the active pointer at it.
func (m *Manager) Rebuild(ctx context.Context, chunks []string, vectors [][]float32) (string, error) {
	if len(chunks) != len(vectors) {
		return "", fmt.Errorf("%d chunks but %d vectors: %w", len(chunks), len(vectors), domain.ErrValidation)
	}

	dim := m.dim
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	entries := make([]domain.Entry, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != dim {
			return "", fmt.Errorf("vector %d has %d dimensions, expected %d: %w",
				i, len(vectors[i]), dim, domain.ErrValidation)
		}
		entries[i] = domain.Entry{Text: chunks[i], Vector: vectors[i]}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backend := m.backend.Name()

	if err := m.wipeLocked(ctx); err != nil {
		metrics.CollectionRebuildsTotal.WithLabelValues(backend, "error").Inc()
		return "", err
	}
	metrics.CollectionWipesTotal.WithLabelValues(backend, "rebuild").Inc()

	id := m.nextID()
	if err := m.backend.Create(ctx, id, dim, entries); err != nil {
		metrics.CollectionRebuildsTotal.WithLabelValues(backend, "error").Inc()
		return "", fmt.Errorf("create collection %s: %w", id, err)
	}
	if err := m.writePointer(id); err != nil {
		metrics.CollectionRebuildsTotal.WithLabelValues(backend, "error").Inc()
		return "", err
	}

	metrics.CollectionRebuildsTotal.WithLabelValues(backend, "ok").Inc()
	metrics.CollectionChunks.Set(float64(len(entries)))

	m.logger.Info("Collection rebuilt",
		zap.String("collection", id),
		zap.String("backend", backend),
		zap.Int("chunks", len(entries)),
		zap.Int("dimensions", dim),
	)
	return id, nil
}

// Active returns the id of the active collection or domain.ErrNotIndexed.
func (m *Manager) Active(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, err := m.readPointer()
	if err != nil {
		return "", err
	}
	return id, nil
}

// Query returns up to k hits nearest to vector. If a rebuild replaced id after
// the caller read it, the search is repeated once against the new collection.
// When the collection turns out to be corrupted, all vector data is wiped
// before domain.ErrCorrupted is returned.
func (m *Manager) Query(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrValidation)
	}

	hits, err := m.search(ctx, id, vector, k)
	if errors.Is(err, domain.ErrCorrupted) {
		if current, ok := m.replaced(id); ok {
			m.logger.Debug("Collection replaced during query, retrying",
				zap.String("stale", id),
				zap.String("current", current),
			)
			id = current
			hits, err = m.search(ctx, id, vector, k)
		}
	}

	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, domain.ErrCorrupted) {
		return nil, fmt.Errorf("search %s: %w", id, err)
	}

	m.logger.Warn("Collection corrupted, wiping vector data",
		zap.String("collection", id),
		zap.Error(err),
	)
	m.wipeCorrupted(ctx, id)
	return nil, fmt.Errorf("search %s: %w", id, err)
}

func (m *Manager) search(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend.Search(ctx, id, vector, k)
}

// replaced reports the active id when it differs from id.
func (m *Manager) replaced(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current, err := m.readPointer()
	if err != nil || current == id {
		return "", false
	}
	return current, true
}

// wipeCorrupted wipes unless a rebuild already replaced id.
func (m *Manager) wipeCorrupted(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, err := m.readPointer(); err == nil && current != id {
		return
	}
	if err := m.wipeLocked(ctx); err != nil {
		m.logger.Error("Failed to wipe corrupted vector data", zap.Error(err))
		return
	}
	metrics.CollectionWipesTotal.WithLabelValues(m.backend.Name(), "corrupted").Inc()
	metrics.CollectionChunks.Set(0)
}

func (m *Manager) wipeLocked(ctx context.Context) error {
	if err := os.Remove(m.pointerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pointer: %w", err)
	}
	if err := m.backend.Wipe(ctx); err != nil {
		return fmt.Errorf("wipe %s: %w", m.backend.Name(), err)
	}
	return nil
}

// nextID returns pdf_<unix millis>, bumped past the previous id when the clock
// has not advanced.
func (m *Manager) nextID() string {
	ms := m.now().UnixMilli()
	if ms <= m.lastID {
		ms = m.lastID + 1
	}
	m.lastID = ms
	return domain.CollectionPrefix + strconv.FormatInt(ms, 10)
}

func (m *Manager) pointerPath() string {
	return filepath.Join(m.dir, PointerFile)
}

func (m *Manager) readPointer() (string, error) {
	data, err := os.ReadFile(m.pointerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNotIndexed
		}
		return "", fmt.Errorf("read pointer: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", domain.ErrNotIndexed
	}
	return id, nil
}

func (m *Manager) writePointer(id string) error {
	tmp, err := os.CreateTemp(m.dir, PointerFile+".*")
	if err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.WriteString(id); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.pointerPath()); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	return nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, domain.CollectionPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(id, domain.CollectionPrefix) {
		return 0, false
	}
	return n, true
}
