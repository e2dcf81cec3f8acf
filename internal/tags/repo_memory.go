package tags

import (
	"context"
	"sort"
	"sync"
)

type edgeKey struct {
	owner string
	tagID string
}

type edge struct {
	confidence float64
	source     Source
	seq        int
}

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Tag
	byName   map[string]string
	docEdges map[edgeKey]edge
	insEdges map[edgeKey]edge
	next     int
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:     make(map[string]Tag),
		byName:   make(map[string]string),
		docEdges: make(map[edgeKey]edge),
		insEdges: make(map[edgeKey]edge),
	}
}

func nameKey(name string, category Category) string {
	return string(category) + "|" + name
}

// GetByID fetches a tag.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Tag, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return Tag{}, ErrNotFound
	}
	return cloneTag(t), nil
}

// GetByName fetches a tag by its canonical name within a category.
func (r *MemoryRepo) GetByName(ctx context.Context, name string, category Category) (Tag, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[nameKey(name, category)]
	if !ok {
		return Tag{}, ErrNotFound
	}
	return cloneTag(r.byID[id]), nil
}

// GetOrCreate returns the existing tag or stores t.
func (r *MemoryRepo) GetOrCreate(ctx context.Context, t Tag) (Tag, bool, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nameKey(t.Name, t.Category)
	if id, ok := r.byName[key]; ok {
		return cloneTag(r.byID[id]), false, nil
	}
	r.byID[t.ID] = cloneTag(t)
	r.byName[key] = t.ID
	return cloneTag(t), true, nil
}

// ListByCategory returns a category's tags ordered by name.
func (r *MemoryRepo) ListByCategory(ctx context.Context, category Category) ([]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tag, 0)
	for _, t := range r.byID {
		if category == "" || t.Category == category {
			out = append(out, cloneTag(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// LinkDocument attaches a tag to a document.
func (r *MemoryRepo) LinkDocument(ctx context.Context, documentID, tagID string, confidence float64, source Source) error {
	return r.link(ctx, r.docEdges, documentID, tagID, confidence, source)
}

// LinkInsight attaches a tag to an insight.
func (r *MemoryRepo) LinkInsight(ctx context.Context, insightID, tagID string, confidence float64, source Source) error {
	return r.link(ctx, r.insEdges, insightID, tagID, confidence, source)
}

// ListByDocument returns a document's tags, strongest first.
func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Link, error) {
	return r.links(ctx, r.docEdges, documentID)
}

// ListByInsight returns an insight's tags, strongest first.
func (r *MemoryRepo) ListByInsight(ctx context.Context, insightID string) ([]Link, error) {
	return r.links(ctx, r.insEdges, insightID)
}

func (r *MemoryRepo) link(ctx context.Context, edges map[edgeKey]edge, owner, tagID string, confidence float64, source Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[tagID]; !ok {
		return ErrNotFound
	}
	key := edgeKey{owner: owner, tagID: tagID}
	if cur, ok := edges[key]; ok {
		if confidence > cur.confidence {
			cur.confidence = confidence
			edges[key] = cur
		}
		return nil
	}
	edges[key] = edge{confidence: confidence, source: source, seq: r.next}
	r.next++
	return nil
}

func (r *MemoryRepo) links(ctx context.Context, edges map[edgeKey]edge, owner string) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	type ranked struct {
		link Link
		seq  int
	}
	var found []ranked
	for key, e := range edges {
		if key.owner != owner {
			continue
		}
		found = append(found, ranked{
			link: Link{Tag: cloneTag(r.byID[key.tagID]), Confidence: e.confidence, Source: e.source},
			seq:  e.seq,
		})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].link.Confidence != found[j].link.Confidence {
			return found[i].link.Confidence > found[j].link.Confidence
		}
		return found[i].seq < found[j].seq
	})
	out := make([]Link, 0, len(found))
	for _, f := range found {
		out = append(out, f.link)
	}
	return out, nil
}

func cloneTag(t Tag) Tag {
	if t.ParentID != nil {
		p := *t.ParentID
		t.ParentID = &p
	}
	return t
}
