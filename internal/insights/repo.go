package insights

import "context"

// Repo defines persistence operations for insights.
type Repo interface {
	CreateBatch(ctx context.Context, items []Insight) error
	GetByID(ctx context.Context, id string) (Insight, error)
	ListByDocument(ctx context.Context, documentID string) ([]Insight, error)
	ListBySession(ctx context.Context, sessionID string) ([]Insight, error)
}
