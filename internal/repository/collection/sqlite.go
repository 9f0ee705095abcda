package collection

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/docuchat/docuchat/internal/db"
	"github.com/docuchat/docuchat/internal/domain"
)

const sqliteSchema = `
CREATE TABLE meta (dim INTEGER NOT NULL);
CREATE TABLE chunks (
	id     INTEGER PRIMARY KEY,
	text   TEXT NOT NULL,
	vector BLOB NOT NULL
);`

// SQLite keeps each collection in its own database file <id>.sqlite3 and
// answers queries with an exact L2 scan.
type SQLite struct {
	dir string
}

var _ Backend = (*SQLite)(nil)

// NewSQLite creates a file-backed backend rooted at dir.
func NewSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	return &SQLite{dir: dir}, nil
}

// Name returns "sqlite".
func (s *SQLite) Name() string { return "sqlite" }

// Ping checks that the vector directory is still reachable.
func (s *SQLite) Ping(_ context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("vector dir: %w", err)
	}
	return nil
}

// Create writes a new collection file. A partially written file is removed on failure.
func (s *SQLite) Create(ctx context.Context, id string, dim int, entries []domain.Entry) (err error) {
	if !db.IsValidIdentifier(id) {
		return fmt.Errorf("invalid collection id %q: %w", id, domain.ErrValidation)
	}
	path := s.path(id)

	conn, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = conn.Close()
		if err != nil {
			removeDBFiles(path)
		}
	}()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO meta (dim) VALUES (?)`, dim); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO chunks (id, text, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with the tx

	for i, e := range entries {
		if _, err = stmt.ExecContext(ctx, i, e.Text, encodeBlob(e.Vector)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type chunkRow struct {
	Text   string `db:"text"`
	Vector []byte `db:"vector"`
}

// Search scans every chunk and returns the k nearest by L2 distance.
// Score is 1/(1+distance).
func (s *SQLite) Search(ctx context.Context, id string, vector []float32, k int) ([]domain.Hit, error) {
	path := s.path(id)
	if !db.IsValidIdentifier(id) {
		return nil, fmt.Errorf("invalid collection id %q: %w", id, domain.ErrCorrupted)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection %s: %w", id, domain.ErrCorrupted)
	}

	conn, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", id, err, domain.ErrCorrupted)
	}
	defer conn.Close() //nolint:errcheck // read-only

	var dim int
	if err := conn.GetContext(ctx, &dim, `SELECT dim FROM meta LIMIT 1`); err != nil {
		return nil, fmt.Errorf("read meta of %s: %v: %w", id, err, domain.ErrCorrupted)
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query has %d dimensions, collection %s has %d: %w",
			len(vector), id, dim, domain.ErrCorrupted)
	}

	var rows []chunkRow
	if err := conn.SelectContext(ctx, &rows, `SELECT text, vector FROM chunks ORDER BY id`); err != nil {
		return nil, fmt.Errorf("read chunks of %s: %v: %w", id, err, domain.ErrCorrupted)
	}

	type scored struct {
		idx  int
		dist float64
	}
	all := make([]scored, 0, len(rows))
	for i, r := range rows {
		v, err := decodeBlob(r.Vector, dim)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %v: %w", i, id, err, domain.ErrCorrupted)
		}
		all = append(all, scored{idx: i, dist: l2(vector, v)})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	n := min(k, len(all))
	hits := make([]domain.Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = domain.Hit{
			Text:  rows[all[i].idx].Text,
			Score: 1 / (1 + all[i].dist),
		}
	}
	return hits, nil
}

// Wipe deletes every collection file in the directory.
func (s *SQLite) Wipe(_ context.Context) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, domain.CollectionPrefix+"*"))
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SQLite) path(id string) string {
	return filepath.Join(s.dir, id+".sqlite3")
}

func removeDBFiles(path string) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

func encodeBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeBlob(data []byte, dim int) ([]float32, error) {
	if len(data) != dim*4 {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(data), dim*4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
