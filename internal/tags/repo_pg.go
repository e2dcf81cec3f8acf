package tags

import (
	"context"
	"database/sql"
	"errors"

	"research-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres. UNIQUE (name, category) on the
// tags table is the final word on duplicates.
type PGRepo struct {
	DB *sql.DB
}

const tagColumns = `id, name, category, parent_id, description, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetByID fetches a tag.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE id = $1`
	return r.one(ctx, query, id)
}

// GetByName fetches a tag by name within a category.
func (r *PGRepo) GetByName(ctx context.Context, name string, category Category) (Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE name = $1 AND category = $2`
	return r.one(ctx, query, name, string(category))
}

// GetOrCreate inserts t unless (name, category) exists. A unique violation
// raised by a concurrent writer is treated as "already exists".
func (r *PGRepo) GetOrCreate(ctx context.Context, t Tag) (Tag, bool, error) {
	const query = `
INSERT INTO tags (
    id,
    name,
    category,
    parent_id,
    description,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name, category) DO NOTHING`

	res, err := r.DB.ExecContext(ctx, query,
		t.ID,
		t.Name,
		string(t.Category),
		nullString(t.ParentID),
		t.Description,
		t.CreatedAt,
	)
	if err != nil {
		if !db.IsUniqueViolation(err) {
			return Tag{}, false, err
		}
	} else {
		n, err := res.RowsAffected()
		if err != nil {
			return Tag{}, false, err
		}
		if n == 1 {
			return t, true, nil
		}
	}
	existing, err := r.GetByName(ctx, t.Name, t.Category)
	if err != nil {
		return Tag{}, false, err
	}
	return existing, false, nil
}

// ListByCategory returns tags ordered by name. An empty category lists all.
func (r *PGRepo) ListByCategory(ctx context.Context, category Category) ([]Tag, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category == "" {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY category, name`)
	} else {
		rows, err = r.DB.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE category = $1 ORDER BY name`, string(category))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LinkDocument upserts a document edge.
func (r *PGRepo) LinkDocument(ctx context.Context, documentID, tagID string, confidence float64, source Source) error {
	const query = `
INSERT INTO document_tags (document_id, tag_id, confidence, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (document_id, tag_id)
DO UPDATE SET confidence = GREATEST(document_tags.confidence, EXCLUDED.confidence)`

	_, err := r.DB.ExecContext(ctx, query, documentID, tagID, confidence, string(source))
	return err
}

// LinkInsight upserts an insight edge.
func (r *PGRepo) LinkInsight(ctx context.Context, insightID, tagID string, confidence float64, source Source) error {
	const query = `
INSERT INTO insight_tags (insight_id, tag_id, confidence, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (insight_id, tag_id)
DO UPDATE SET confidence = GREATEST(insight_tags.confidence, EXCLUDED.confidence)`

	_, err := r.DB.ExecContext(ctx, query, insightID, tagID, confidence, string(source))
	return err
}

// ListByDocument returns a document's tags, strongest first.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Link, error) {
	const query = `
SELECT t.id, t.name, t.category, t.parent_id, t.description, t.created_at, e.confidence, e.source
FROM document_tags e
JOIN tags t ON t.id = e.tag_id
WHERE e.document_id = $1
ORDER BY e.confidence DESC, e.created_at`
	return r.links(ctx, query, documentID)
}

// ListByInsight returns an insight's tags, strongest first.
func (r *PGRepo) ListByInsight(ctx context.Context, insightID string) ([]Link, error) {
	const query = `
SELECT t.id, t.name, t.category, t.parent_id, t.description, t.created_at, e.confidence, e.source
FROM insight_tags e
JOIN tags t ON t.id = e.tag_id
WHERE e.insight_id = $1
ORDER BY e.confidence DESC, e.created_at`
	return r.links(ctx, query, insightID)
}

func (r *PGRepo) one(ctx context.Context, query string, args ...any) (Tag, error) {
	t, err := scanTag(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, err
	}
	return t, nil
}

func (r *PGRepo) links(ctx context.Context, query, owner string) ([]Link, error) {
	rows, err := r.DB.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Link, 0)
	for rows.Next() {
		var (
			l        Link
			category string
			source   string
			parent   sql.NullString
		)
		if err := rows.Scan(
			&l.Tag.ID,
			&l.Tag.Name,
			&category,
			&parent,
			&l.Tag.Description,
			&l.Tag.CreatedAt,
			&l.Confidence,
			&source,
		); err != nil {
			return nil, err
		}
		l.Tag.Category = Category(category)
		if parent.Valid {
			p := parent.String
			l.Tag.ParentID = &p
		}
		l.Source = Source(source)
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanTag(row rowScanner) (Tag, error) {
	var (
		t        Tag
		category string
		parent   sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &category, &parent, &t.Description, &t.CreatedAt); err != nil {
		return Tag{}, err
	}
	t.Category = Category(category)
	if parent.Valid {
		p := parent.String
		t.ParentID = &p
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
