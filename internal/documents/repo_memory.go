package documents

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return ErrInvalidInput
	}
	r.data[doc.ID] = cloneDocument(doc)
	return nil
}

// GetByID returns a document by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List returns documents oldest first, honoring the status filter and paging.
func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset := clampPage(f.Limit, f.Offset)

	r.mu.RLock()
	docs := make([]Document, 0, len(r.data))
	for _, doc := range r.data {
		if f.Status != "" && doc.AnalysisStatus != f.Status {
			continue
		}
		docs = append(docs, cloneDocument(doc))
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// Transition performs a compare-and-set on the analysis status.
func (r *MemoryRepo) Transition(ctx context.Context, id string, from []Status, to Status) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if !slices.Contains(from, doc.AnalysisStatus) {
		return cloneDocument(doc), ErrInvalidTransition
	}
	doc.AnalysisStatus = to
	doc.UpdatedAt = r.now()
	r.data[id] = doc
	return cloneDocument(doc), nil
}

// UpdateStatus sets the analysis status unconditionally.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.AnalysisStatus = status
	})
}

// UpdateClassification writes the classifier result.
func (r *MemoryRepo) UpdateClassification(ctx context.Context, id string, c Classification) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.Type = c.Type
		doc.EvidenceStrength = c.EvidenceStrength
		doc.PracticalApplicability = c.PracticalApplicability
		doc.AnalysisConfidence = c.Confidence
		at := c.ClassifiedAt
		doc.ClassifiedAt = &at
	})
}

// UpdateFullText stores text extracted from the source file.
func (r *MemoryRepo) UpdateFullText(ctx context.Context, id string, text string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.FullText = text
	})
}

// UpdateNovelty stores the novelty score reported by extraction.
func (r *MemoryRepo) UpdateNovelty(ctx context.Context, id string, score float64) error {
	return r.mutate(ctx, id, func(doc *Document) {
		s := score
		doc.NoveltyScore = &s
	})
}

// Stats aggregates classification results.
func (r *MemoryRepo) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := newStats()
	for _, doc := range r.data {
		stats.add(doc.AnalysisStatus, doc.Type, doc.EvidenceStrength, doc.PracticalApplicability,
			confidenceBucket(doc.AnalysisConfidence), 1, doc.AnalysisConfidence)
	}
	return stats, nil
}

func (r *MemoryRepo) mutate(ctx context.Context, id string, fn func(doc *Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	fn(&doc)
	doc.UpdatedAt = r.now()
	r.data[id] = doc
	return nil
}

func cloneDocument(doc Document) Document {
	doc.Categories = slices.Clone(doc.Categories)
	if doc.NoveltyScore != nil {
		v := *doc.NoveltyScore
		doc.NoveltyScore = &v
	}
	if doc.ClassifiedAt != nil {
		v := *doc.ClassifiedAt
		doc.ClassifiedAt = &v
	}
	return doc
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var _ Repo = (*MemoryRepo)(nil)
