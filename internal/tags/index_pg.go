package tags

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PGIndex keeps vectors in tag_embeddings as JSON arrays. Rows written by a
// different Model are ignored and overwritten on the next Put.
type PGIndex struct {
	DB    *sql.DB
	Model string
}

// Vectors loads vectors for the given ids.
func (x *PGIndex) Vectors(ctx context.Context, tagIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(tagIDs))
	if len(tagIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(tagIDs))
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, x.Model)
	for i, id := range tagIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := `SELECT tag_id, vector FROM tag_embeddings WHERE model = $1 AND tag_id IN (` +
		strings.Join(placeholders, ", ") + `)`

	rows, err := x.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// Put upserts one vector.
func (x *PGIndex) Put(ctx context.Context, tagID string, vector []float32) error {
	const query = `
INSERT INTO tag_embeddings (tag_id, model, vector, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tag_id)
DO UPDATE SET model = EXCLUDED.model, vector = EXCLUDED.vector, updated_at = EXCLUDED.updated_at`

	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = x.DB.ExecContext(ctx, query, tagID, x.Model, raw, time.Now().UTC())
	return err
}
