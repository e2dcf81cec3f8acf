package tags

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteIndex keeps vectors in a local SQLite file as little-endian float32
// blobs. It serves CLI runs that have no Postgres.
type SQLiteIndex struct {
	db    *sql.DB
	model string
}

// OpenSQLiteIndex opens (and creates) the index at path with WAL enabled.
func OpenSQLiteIndex(ctx context.Context, path, model string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS tag_embeddings (
	tag_id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	dim INTEGER NOT NULL,
	vector BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tag index schema: %w", err)
	}
	return &SQLiteIndex{db: db, model: model}, nil
}

// Close closes the underlying database.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}

// Vectors loads vectors for the given ids.
func (x *SQLiteIndex) Vectors(ctx context.Context, tagIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(tagIDs))
	if len(tagIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, x.model)
	for _, id := range tagIDs {
		args = append(args, id)
	}
	query := `SELECT tag_id, dim, vector FROM tag_embeddings WHERE model = ? AND tag_id IN (` +
		strings.TrimSuffix(strings.Repeat("?, ", len(tagIDs)), ", ") + `)`

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			dim  int
			blob []byte
		)
		if err := rows.Scan(&id, &dim, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// Put upserts one vector.
func (x *SQLiteIndex) Put(ctx context.Context, tagID string, vector []float32) error {
	const query = `
INSERT INTO tag_embeddings (tag_id, model, dim, vector, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (tag_id) DO UPDATE SET
	model = excluded.model,
	dim = excluded.dim,
	vector = excluded.vector,
	updated_at = excluded.updated_at`

	_, err := x.db.ExecContext(ctx, query, tagID, x.model, len(vector), encodeVector(vector),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("%w: %d bytes for %d dims", ErrDimensionMismatch, len(buf), dim)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}
