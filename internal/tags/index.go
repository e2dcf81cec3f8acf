package tags

import (
	"context"
	"slices"
	"sync"
)

// EmbeddingIndex stores one vector per tag id. Vectors are produced by a
// single embedding model; a missing id simply has no entry.
type EmbeddingIndex interface {
	Vectors(ctx context.Context, tagIDs []string) (map[string][]float32, error)
	Put(ctx context.Context, tagID string, vector []float32) error
}

// MemoryIndex is an in-process EmbeddingIndex.
type MemoryIndex struct {
	mu   sync.RWMutex
	data map[string][]float32
}

// NewMemoryIndex constructs a MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{data: make(map[string][]float32)}
}

// Vectors returns the stored vectors for the ids that have one.
func (m *MemoryIndex) Vectors(ctx context.Context, tagIDs []string) (map[string][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32, len(tagIDs))
	for _, id := range tagIDs {
		if v, ok := m.data[id]; ok {
			out[id] = slices.Clone(v)
		}
	}
	return out, nil
}

// Put stores or replaces a vector.
func (m *MemoryIndex) Put(ctx context.Context, tagID string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[tagID] = slices.Clone(vector)
	return nil
}
