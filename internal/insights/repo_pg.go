package insights

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const insightColumns = `id, document_id, session_id, insight_type, title, description, content, confidence,
extraction_method, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateBatch inserts all insights in one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, items []Insight) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const query = `
INSERT INTO insights (
    id,
    document_id,
    session_id,
    insight_type,
    title,
    description,
    content,
    confidence,
    extraction_method,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, it := range items {
		var content []byte
		content, err = json.Marshal(it.Content)
		if err != nil {
			return fmt.Errorf("marshal insight content: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query,
			it.ID,
			it.DocumentID,
			it.SessionID,
			string(it.Type),
			it.Title,
			it.Description,
			content,
			it.Confidence,
			it.ExtractionMethod,
			it.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert insight %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// GetByID fetches an insight by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE id = $1`
	it, err := scanInsight(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Insight{}, ErrNotFound
		}
		return Insight{}, err
	}
	return it, nil
}

// ListByDocument returns the document's insights, newest first.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE document_id = $1 ORDER BY created_at DESC, id`
	return r.query(ctx, query, documentID)
}

// ListBySession returns the insights produced by one session.
func (r *PGRepo) ListBySession(ctx context.Context, sessionID string) ([]Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE session_id = $1 ORDER BY created_at DESC, id`
	return r.query(ctx, query, sessionID)
}

func (r *PGRepo) query(ctx context.Context, query string, arg string) ([]Insight, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Insight, 0)
	for rows.Next() {
		it, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanInsight(row rowScanner) (Insight, error) {
	var (
		it      Insight
		typ     string
		content []byte
	)
	if err := row.Scan(
		&it.ID,
		&it.DocumentID,
		&it.SessionID,
		&typ,
		&it.Title,
		&it.Description,
		&content,
		&it.Confidence,
		&it.ExtractionMethod,
		&it.CreatedAt,
	); err != nil {
		return Insight{}, err
	}
	it.Type = Type(typ)
	it.Content = map[string]any{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &it.Content); err != nil {
			return Insight{}, fmt.Errorf("decode insight content: %w", err)
		}
	}
	return it, nil
}
