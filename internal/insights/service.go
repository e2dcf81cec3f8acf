package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service stores extraction drafts and serves them back.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// Persist turns drafts into insights owned by the document and session.
// Invalid drafts are rejected as a whole.
func (s *Service) Persist(ctx context.Context, documentID, sessionID string, drafts []Draft) ([]Insight, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: document and session are required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	items := make([]Insight, 0, len(drafts))
	for i, d := range drafts {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("%w: draft %d has type %q", ErrInvalidInput, i, d.Type)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return nil, fmt.Errorf("%w: draft %d confidence %v out of range", ErrInvalidInput, i, d.Confidence)
		}
		content := d.Content
		if content == nil {
			content = map[string]any{}
		}
		items = append(items, Insight{
			ID:               uuid.NewString(),
			DocumentID:       documentID,
			SessionID:        sessionID,
			Type:             d.Type,
			Title:            d.Title,
			Description:      d.Description,
			Content:          content,
			Confidence:       d.Confidence,
			ExtractionMethod: d.Method,
			CreatedAt:        now,
		})
	}
	if len(items) == 0 {
		return items, nil
	}
	if err := s.Repo.CreateBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("store insights: %w", err)
	}
	return items, nil
}

// ListByDocument returns a document's insights, newest session first.
func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]Insight, error) {
	return s.Repo.ListByDocument(ctx, documentID)
}

// Get returns one insight.
func (s *Service) Get(ctx context.Context, id string) (Insight, error) {
	return s.Repo.GetByID(ctx, id)
}
