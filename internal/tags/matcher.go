package tags

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"research-backend/internal/llm"
	"research-backend/internal/shared/telemetry"
)

const (
	// ReuseThreshold and above means the candidate is the same concept.
	ReuseThreshold = 0.90
	// ReviewThreshold and above (below ReuseThreshold) sends the candidate
	// to generalization with the near matches as context.
	ReviewThreshold = 0.70

	defaultTopK      = 3
	defaultCacheSize = 4096
)

// Match is one existing tag scored against a candidate.
type Match struct {
	Tag        Tag
	Similarity float64
}

// Band is the threshold band of a similarity score.
type Band string

const (
	BandReuse  Band = "reuse"
	BandReview Band = "review"
	BandNew    Band = "new"
)

// Classify maps a similarity score onto the threshold policy.
func Classify(similarity float64) Band {
	switch {
	case similarity >= ReuseThreshold:
		return BandReuse
	case similarity >= ReviewThreshold:
		return BandReview
	default:
		return BandNew
	}
}

// Matcher compares candidate terms against a category's existing tags by
// embedding cosine similarity.
type Matcher struct {
	Repo     Repo
	Index    EmbeddingIndex
	Embedder llm.Embedder
	TopK     int

	mu        sync.Mutex
	cache     map[string][]float32
	cacheSize int
}

// NewMatcher constructs a Matcher returning the top k matches.
func NewMatcher(repo Repo, index EmbeddingIndex, embedder llm.Embedder, topK int) *Matcher {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Matcher{Repo: repo, Index: index, Embedder: embedder, TopK: topK, cacheSize: defaultCacheSize}
}

// Match returns up to TopK existing tags in category ordered by similarity
// descending. Tags without a stored vector are embedded in one batch and
// written back to the index.
func (m *Matcher) Match(ctx context.Context, term string, category Category) ([]Match, error) {
	existing, err := m.Repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list %s tags: %w", category, err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	query, err := m.embed(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("embed candidate: %w", err)
	}

	ids := make([]string, len(existing))
	for i, t := range existing {
		ids[i] = t.ID
	}
	vectors, err := m.Index.Vectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load tag vectors: %w", err)
	}
	if err := m.backfill(ctx, existing, vectors); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(existing))
	for _, t := range existing {
		vec, ok := vectors[t.ID]
		if !ok {
			continue
		}
		sim, err := Cosine(query, vec)
		if err != nil {
			telemetry.Warn("tags.match.skip", map[string]any{"tag_id": t.ID, "error": err})
			continue
		}
		matches = append(matches, Match{Tag: t, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	topK := m.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Remember stores the vector of a newly created tag.
func (m *Matcher) Remember(ctx context.Context, t Tag) error {
	vec, err := m.embed(ctx, t.Name)
	if err != nil {
		return err
	}
	return m.Index.Put(ctx, t.ID, vec)
}

func (m *Matcher) backfill(ctx context.Context, existing []Tag, vectors map[string][]float32) error {
	var missing []Tag
	var texts []string
	for _, t := range existing {
		if _, ok := vectors[t.ID]; ok {
			continue
		}
		if v, ok := m.cached(t.Name); ok {
			vectors[t.ID] = v
			continue
		}
		missing = append(missing, t)
		texts = append(texts, t.Name)
	}
	if len(missing) == 0 {
		return nil
	}
	batch, err := m.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d existing tags: %w", len(texts), err)
	}
	if len(batch) != len(missing) {
		return fmt.Errorf("embed existing tags: got %d vectors for %d texts", len(batch), len(missing))
	}
	for i, t := range missing {
		vectors[t.ID] = batch[i]
		m.store(t.Name, batch[i])
		if err := m.Index.Put(ctx, t.ID, batch[i]); err != nil {
			telemetry.Warn("tags.index.put_failed", map[string]any{"tag_id": t.ID, "error": err})
		}
	}
	return nil
}

func (m *Matcher) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.cached(text); ok {
		return v, nil
	}
	v, err := m.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.store(text, v)
	return v, nil
}

func (m *Matcher) cached(text string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache[text]
	return v, ok
}

func (m *Matcher) store(text string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache == nil {
		m.cache = make(map[string][]float32)
	}
	size := m.cacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	if len(m.cache) >= size {
		clear(m.cache)
	}
	m.cache[text] = v
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
