package extraction

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of SessionRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Session
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Session)}
}

// Create stores a new in-progress session.
func (r *MemoryRepo) Create(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[s.ID]; exists {
		return ErrSessionClosed
	}
	s.Steps = nil
	r.data[s.ID] = cloneSession(s)
	return nil
}

// AppendStep adds a step at position seq.
func (r *MemoryRepo) AppendStep(ctx context.Context, sessionID string, seq int, st StepResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status.Terminal() || seq != len(s.Steps) {
		return ErrSessionClosed
	}
	s.Steps = append(s.Steps, cloneStep(st))
	r.data[sessionID] = s
	return nil
}

// Finish records the terminal state. Steps already appended are kept.
func (r *MemoryRepo) Finish(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if cur.Status.Terminal() {
		return ErrSessionClosed
	}
	cur.Status = s.Status
	cur.MethodUsed = s.MethodUsed
	cur.FallbackUsed = s.FallbackUsed
	cur.FallbackReason = s.FallbackReason
	cur.Confidence = s.Confidence
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		cur.CompletedAt = &at
	}
	r.data[s.ID] = cur
	return nil
}

// GetByID returns a session with its steps.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// ListByDocument returns a document's sessions, newest first.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0)
	for _, s := range r.data {
		if s.DocumentID == documentID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
