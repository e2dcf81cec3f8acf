package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements SessionRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const sessionColumns = `id, document_id, status, method_used, fallback_used, fallback_reason, confidence,
started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new session row.
func (r *PGRepo) Create(ctx context.Context, s Session) error {
	const query = `
INSERT INTO extraction_sessions (
    id,
    document_id,
    status,
    method_used,
    fallback_used,
    fallback_reason,
    confidence,
    started_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(ctx, query,
		s.ID,
		s.DocumentID,
		string(s.Status),
		string(s.MethodUsed),
		s.FallbackUsed,
		s.FallbackReason,
		s.Confidence,
		s.StartedAt,
	)
	return err
}

// AppendStep inserts a step only while the session is in progress.
func (r *PGRepo) AppendStep(ctx context.Context, sessionID string, seq int, st StepResult) error {
	const query = `
INSERT INTO extraction_steps (
    session_id,
    seq,
    step_name,
    content,
    confidence,
    validation_errors,
    execution_time_ms,
    attempts,
    succeeded
)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
WHERE EXISTS (SELECT 1 FROM extraction_sessions WHERE id = $1 AND status = 'in_progress')`

	content, err := json.Marshal(nonNilMap(st.Content))
	if err != nil {
		return fmt.Errorf("marshal step content: %w", err)
	}
	errs := st.ValidationErrors
	if errs == nil {
		errs = []string{}
	}
	validation, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal validation errors: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, query,
		sessionID,
		seq,
		st.StepName,
		content,
		st.Confidence,
		validation,
		st.ExecutionTimeMs,
		st.Attempts,
		st.Succeeded,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionClosed
	}
	return nil
}

// Finish moves an in-progress session to its terminal state.
func (r *PGRepo) Finish(ctx context.Context, s Session) error {
	const query = `
UPDATE extraction_sessions
SET status = $1,
    method_used = $2,
    fallback_used = $3,
    fallback_reason = $4,
    confidence = $5,
    completed_at = $6
WHERE id = $7 AND status = 'in_progress'`

	completed := time.Now().UTC()
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}
	res, err := r.DB.ExecContext(ctx, query,
		string(s.Status),
		string(s.MethodUsed),
		s.FallbackUsed,
		s.FallbackReason,
		s.Confidence,
		completed,
		s.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionClosed
	}
	return nil
}

// GetByID loads a session and its steps.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM extraction_sessions WHERE id = $1`
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	steps, err := r.steps(ctx, id)
	if err != nil {
		return Session{}, err
	}
	s.Steps = steps
	return s, nil
}

// ListByDocument returns session headers for a document, newest first.
// Steps are not loaded.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM extraction_sessions WHERE document_id = $1 ORDER BY started_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepo) steps(ctx context.Context, sessionID string) ([]StepResult, error) {
	const query = `
SELECT step_name, content, confidence, validation_errors, execution_time_ms, attempts, succeeded
FROM extraction_steps
WHERE session_id = $1
ORDER BY seq`

	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StepResult, 0)
	for rows.Next() {
		var (
			st         StepResult
			content    []byte
			validation []byte
		)
		if err := rows.Scan(&st.StepName, &content, &st.Confidence, &validation, &st.ExecutionTimeMs, &st.Attempts, &st.Succeeded); err != nil {
			return nil, err
		}
		if len(content) > 0 {
			if err := json.Unmarshal(content, &st.Content); err != nil {
				return nil, fmt.Errorf("decode step content: %w", err)
			}
		}
		if len(validation) > 0 {
			if err := json.Unmarshal(validation, &st.ValidationErrors); err != nil {
				return nil, fmt.Errorf("decode validation errors: %w", err)
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s         Session
		status    string
		method    string
		completed sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.DocumentID,
		&status,
		&method,
		&s.FallbackUsed,
		&s.FallbackReason,
		&s.Confidence,
		&s.StartedAt,
		&completed,
	); err != nil {
		return Session{}, err
	}
	s.Status = Status(status)
	s.MethodUsed = Method(method)
	if completed.Valid {
		at := completed.Time
		s.CompletedAt = &at
	}
	return s, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
