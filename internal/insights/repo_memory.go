package insights

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Insight
	seq  map[string]int
	next int
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Insight), seq: make(map[string]int)}
}

// CreateBatch stores all items or none.
func (r *MemoryRepo) CreateBatch(ctx context.Context, items []Insight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		if _, exists := r.data[it.ID]; exists {
			return ErrInvalidInput
		}
	}
	for _, it := range items {
		r.data[it.ID] = cloneInsight(it)
		r.seq[it.ID] = r.next
		r.next++
	}
	return nil
}

// GetByID returns an insight by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Insight, error) {
	if err := ctx.Err(); err != nil {
		return Insight{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.data[id]
	if !ok {
		return Insight{}, ErrNotFound
	}
	return cloneInsight(it), nil
}

// ListByDocument returns the document's insights, latest batch first and in
// insertion order within a batch.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Insight, error) {
	return r.list(ctx, func(it Insight) bool { return it.DocumentID == documentID })
}

// ListBySession returns the insights produced by one session.
func (r *MemoryRepo) ListBySession(ctx context.Context, sessionID string) ([]Insight, error) {
	return r.list(ctx, func(it Insight) bool { return it.SessionID == sessionID })
}

func (r *MemoryRepo) list(ctx context.Context, keep func(Insight) bool) ([]Insight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Insight, 0)
	for _, it := range r.data {
		if keep(it) {
			out = append(out, cloneInsight(it))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] < r.seq[out[j].ID]
	})
	return out, nil
}

func cloneInsight(it Insight) Insight {
	it.Content = maps.Clone(it.Content)
	return it
}
