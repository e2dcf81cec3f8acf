package extraction

import "context"

// SessionRepo persists extraction sessions. Sessions are append-only until
// Finish; after that AppendStep and Finish return ErrSessionClosed.
type SessionRepo interface {
	Create(ctx context.Context, s Session) error
	AppendStep(ctx context.Context, sessionID string, seq int, st StepResult) error
	Finish(ctx context.Context, s Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	ListByDocument(ctx context.Context, documentID string) ([]Session, error)
}
