package documents

import "context"

// Repo defines persistence operations for documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)
	// Transition moves a document to `to` only when its current status is one of `from`.
	// On mismatch it returns the current document and ErrInvalidTransition.
	Transition(ctx context.Context, id string, from []Status, to Status) (Document, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateClassification(ctx context.Context, id string, c Classification) error
	UpdateFullText(ctx context.Context, id string, text string) error
	UpdateNovelty(ctx context.Context, id string, score float64) error
	Stats(ctx context.Context) (Stats, error)
}
