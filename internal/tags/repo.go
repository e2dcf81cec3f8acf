package tags

import "context"

// Repo persists tags and their document/insight edges.
type Repo interface {
	GetByID(ctx context.Context, id string) (Tag, error)
	GetByName(ctx context.Context, name string, category Category) (Tag, error)
	// GetOrCreate atomically returns the existing (name, category) tag or
	// inserts t. The bool reports whether t was inserted.
	GetOrCreate(ctx context.Context, t Tag) (Tag, bool, error)
	ListByCategory(ctx context.Context, category Category) ([]Tag, error)

	// Linking an existing edge again keeps the higher confidence.
	LinkDocument(ctx context.Context, documentID, tagID string, confidence float64, source Source) error
	LinkInsight(ctx context.Context, insightID, tagID string, confidence float64, source Source) error
	ListByDocument(ctx context.Context, documentID string) ([]Link, error)
	ListByInsight(ctx context.Context, insightID string) ([]Link, error)
}
