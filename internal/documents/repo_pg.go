package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, title, abstract, categories, full_text, source_key, mime_type, content_hash,
doc_type, evidence_strength, practical_applicability, novelty_score, analysis_status, analysis_confidence,
classified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    title,
    abstract,
    categories,
    full_text,
    source_key,
    mime_type,
    content_hash,
    analysis_status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	categories, err := marshalCategories(doc.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	status := doc.AnalysisStatus
	if status == "" {
		status = StatusPending
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Abstract,
		categories,
		doc.FullText,
		nullString(doc.SourceKey),
		nullString(doc.MimeType),
		doc.ContentHash,
		string(status),
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List returns documents oldest first.
func (r *PGRepo) List(ctx context.Context, f Filter) ([]Document, error) {
	limit, offset := clampPage(f.Limit, f.Offset)

	var (
		rows *sql.Rows
		err  error
	)
	if f.Status != "" {
		query := `SELECT ` + documentColumns + `
FROM documents
WHERE analysis_status = $1
ORDER BY created_at ASC, id ASC
LIMIT $2 OFFSET $3`
		rows, err = r.DB.QueryContext(ctx, query, string(f.Status), limit, offset)
	} else {
		query := `SELECT ` + documentColumns + `
FROM documents
ORDER BY created_at ASC, id ASC
LIMIT $1 OFFSET $2`
		rows, err = r.DB.QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Transition performs a compare-and-set on analysis_status in one statement.
func (r *PGRepo) Transition(ctx context.Context, id string, from []Status, to Status) (Document, error) {
	if len(from) == 0 {
		return Document{}, ErrInvalidTransition
	}
	args := []any{string(to), id}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `
UPDATE documents
SET analysis_status = $1, updated_at = now()
WHERE id = $2 AND analysis_status IN (` + strings.Join(placeholders, ", ") + `)
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return Document{}, getErr
	}
	return current, ErrInvalidTransition
}

// UpdateStatus sets analysis_status unconditionally.
func (r *PGRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	const query = `UPDATE documents SET analysis_status = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, query, string(status), id)
}

// UpdateClassification writes classifier output.
func (r *PGRepo) UpdateClassification(ctx context.Context, id string, c Classification) error {
	const query = `
UPDATE documents
SET doc_type = $1, evidence_strength = $2, practical_applicability = $3,
    analysis_confidence = $4, classified_at = $5, updated_at = now()
WHERE id = $6`
	return r.execOne(ctx, query, c.Type, c.EvidenceStrength, c.PracticalApplicability, c.Confidence, c.ClassifiedAt, id)
}

// UpdateFullText stores text extracted from the source file.
func (r *PGRepo) UpdateFullText(ctx context.Context, id string, text string) error {
	const query = `UPDATE documents SET full_text = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, query, text, id)
}

// UpdateNovelty stores the novelty score reported by extraction.
func (r *PGRepo) UpdateNovelty(ctx context.Context, id string, score float64) error {
	const query = `UPDATE documents SET novelty_score = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, query, score, id)
}

// Stats aggregates classification results with one grouped query.
func (r *PGRepo) Stats(ctx context.Context) (Stats, error) {
	const query = `
SELECT analysis_status,
       COALESCE(doc_type, ''),
       COALESCE(evidence_strength, ''),
       COALESCE(practical_applicability, ''),
       CASE WHEN analysis_confidence >= 0.7 THEN 'high'
            WHEN analysis_confidence >= 0.4 THEN 'medium'
            ELSE 'low' END AS bucket,
       COUNT(*),
       COALESCE(SUM(analysis_confidence), 0)
FROM documents
GROUP BY 1, 2, 3, 4, 5`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var (
			status, docType, evidence, applicability, bucket string
			count                                            int
			sum                                              float64
		)
		if err := rows.Scan(&status, &docType, &evidence, &applicability, &bucket, &count, &sum); err != nil {
			return Stats{}, err
		}
		stats.add(Status(status), docType, evidence, applicability, bucket, count, sum)
	}
	return stats, rows.Err()
}

func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc           Document
		categories    []byte
		sourceKey     sql.NullString
		mimeType      sql.NullString
		docType       sql.NullString
		evidence      sql.NullString
		applicability sql.NullString
		novelty       sql.NullFloat64
		status        string
		classifiedAt  sql.NullTime
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Abstract,
		&categories,
		&doc.FullText,
		&sourceKey,
		&mimeType,
		&doc.ContentHash,
		&docType,
		&evidence,
		&applicability,
		&novelty,
		&status,
		&doc.AnalysisConfidence,
		&classifiedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &doc.Categories); err != nil {
			return Document{}, fmt.Errorf("decode categories: %w", err)
		}
	}
	doc.SourceKey = sourceKey.String
	doc.MimeType = mimeType.String
	doc.Type = docType.String
	doc.EvidenceStrength = evidence.String
	doc.PracticalApplicability = applicability.String
	if novelty.Valid {
		v := novelty.Float64
		doc.NoveltyScore = &v
	}
	doc.AnalysisStatus = Status(status)
	if classifiedAt.Valid {
		t := classifiedAt.Time
		doc.ClassifiedAt = &t
	}
	return doc, nil
}

func marshalCategories(categories []string) ([]byte, error) {
	if len(categories) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(categories)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
