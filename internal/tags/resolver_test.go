package tags

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-backend/internal/insights"
	"research-backend/internal/llm"
)

func TestResolveReusesNearDuplicateTag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	existing := seedTag(repo, "t1", "transformer-architecture", CategoryConcept)
	emb := newFakeEmbedder(map[string][]float32{
		"transformer-architecture":  axis(),
		"attention-is-all-you-need": near(0.93),
	})
	calls := 0
	gen := NewGeneralizer(funcReasoner(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		calls++
		return llm.Response{}, errors.New("should not be called")
	}), 0)
	r := NewResolver(repo, NewMatcher(repo, NewMemoryIndex(), emb, 3), gen)

	res, err := r.Resolve(ctx, "attention-is-all-you-need", CategoryConcept)
	require.NoError(t, err)
	assert.Equal(t, ActionReuse, res.Action)
	assert.Equal(t, existing.ID, res.Tag.ID)
	assert.GreaterOrEqual(t, res.Similarity, ReuseThreshold)
	assert.False(t, res.Created)
	assert.Zero(t, calls)

	all, err := repo.ListByCategory(ctx, CategoryConcept)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolveNearDuplicatesShareOneTag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedTag(repo, "t1", "transformer-architecture", CategoryConcept)
	emb := newFakeEmbedder(map[string][]float32{
		"transformer-architecture": axis(),
		"transformer-models":       near(0.95),
		"transformer-networks":     near(0.91),
	})
	r := NewResolver(repo, NewMatcher(repo, NewMemoryIndex(), emb, 3), NewGeneralizer(nil, 0))

	a, err := r.Resolve(ctx, "Transformer Models", CategoryConcept)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "transformer networks", CategoryConcept)
	require.NoError(t, err)
	assert.Equal(t, a.Tag.ID, b.Tag.ID)
	assert.Equal(t, "t1", a.Tag.ID)
}

func TestResolveExactNameSkipsMatcher(t *testing.T) {
	repo := NewMemoryRepo()
	seedTag(repo, "t1", "graph-neural-networks", CategoryMethodology)
	emb := newFakeEmbedder(nil)
	r := NewResolver(repo, NewMatcher(repo, NewMemoryIndex(), emb, 3), nil)

	res, err := r.Resolve(context.Background(), "Graph Neural Networks", CategoryMethodology)
	require.NoError(t, err)
	assert.Equal(t, ActionExact, res.Action)
	assert.Equal(t, "t1", res.Tag.ID)
	assert.Zero(t, emb.embedCalls)
}

func TestResolveReviewBandGeneralizesIntoExistingTag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	existing := seedTag(repo, "t1", "model-training", CategoryMethodology)
	emb := newFakeEmbedder(map[string][]float32{
		"model-training":                      axis(),
		"pretraining-recipe-for-transformers": near(0.8),
	})
	var prompt string
	gen := NewGeneralizer(funcReasoner(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		prompt = req.Prompt
		return llm.Response{Content: map[string]any{"suggested_tag": "model-training"}}, nil
	}), 0)
	r := NewResolver(repo, NewMatcher(repo, NewMemoryIndex(), emb, 3), gen)

	res, err := r.Resolve(ctx, "pretraining recipe for transformers", CategoryMethodology)
	require.NoError(t, err)
	assert.Equal(t, ActionGeneralize, res.Action)
	assert.Equal(t, existing.ID, res.Tag.ID)
	assert.False(t, res.Created)
	assert.Contains(t, prompt, "Similar existing tags: model-training")
}

func TestResolveNewTermCreatesGeneralizedTag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedTag(repo, "t1", "model-training", CategoryMethodology)
	emb := newFakeEmbedder(map[string][]float32{"model-training": axis()})
	index := NewMemoryIndex()
	r := NewResolver(repo, NewMatcher(repo, index, emb, 3), NewGeneralizer(suggesting("Scaling Analysis"), 0))

	res, err := r.Resolve(ctx, "Analyze the relationship between model size and dataset size", CategoryMethodology)
	require.NoError(t, err)
	assert.Equal(t, ActionGeneralize, res.Action)
	assert.True(t, res.Created)
	assert.Equal(t, "scaling-analysis", res.Tag.Name)

	vecs, err := index.Vectors(ctx, []string{res.Tag.ID})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestResolveConcurrentCallsCreateOneTag(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	r := NewResolver(repo, nil, nil)

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(ctx, "Graph Neural Networks", CategoryConcept)
			if err == nil {
				ids[i] = res.Tag.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.Equal(t, ids[0], id)
	}
	all, err := repo.ListByCategory(ctx, CategoryConcept)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolveRejectsBadInput(t *testing.T) {
	r := NewResolver(NewMemoryRepo(), nil, nil)
	_, err := r.Resolve(context.Background(), "valid", Category("opinion"))
	assert.ErrorIs(t, err, ErrInvalidCategory)
	_, err = r.Resolve(context.Background(), "???", CategoryConcept)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestResolveInsightsLinksDocumentAndInsights(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	seedTag(repo, "t1", "efficient-attention", CategoryConcept)
	emb := newFakeEmbedder(map[string][]float32{
		"efficient-attention": axis(),
		"sparse-attention":    near(0.95),
	})
	r := NewResolver(repo, NewMatcher(repo, NewMemoryIndex(), emb, 3), nil)

	items := []insights.Insight{
		{
			ID:         "ins-1",
			Type:       insights.TypeConcept,
			Confidence: 0.8,
			Content: map[string]any{
				"research_domain": "Natural Language Processing",
				"key_concepts":    []any{"sparse attention", "long context", "Sparse Attention"},
			},
		},
		{ID: "ins-2", Type: insights.TypeKeyFinding, Confidence: 0.9, Content: map[string]any{"main_contribution": "x"}},
	}

	links, err := r.ResolveInsights(ctx, "doc-1", items)
	require.NoError(t, err)
	require.Len(t, links, 3)

	byName := map[string]Link{}
	for _, l := range links {
		byName[l.Tag.Name] = l
	}
	require.Contains(t, byName, "efficient-attention")
	assert.InDelta(t, 0.8*0.95, byName["efficient-attention"].Confidence, 1e-3)
	require.Contains(t, byName, "natural-language-processing")
	assert.Equal(t, CategoryDomain, byName["natural-language-processing"].Tag.Category)
	assert.InDelta(t, 0.8, byName["natural-language-processing"].Confidence, 1e-9)
	require.Contains(t, byName, "long-context")

	docLinks, err := repo.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, docLinks, 3)
	insLinks, err := repo.ListByInsight(ctx, "ins-1")
	require.NoError(t, err)
	assert.Len(t, insLinks, 3)
	for _, l := range docLinks {
		assert.Equal(t, SourceAutomatic, l.Source)
	}
}

func TestGeneralizerFallsBackToHeuristic(t *testing.T) {
	ctx := context.Background()
	cases := map[string]llm.Reasoner{
		"service error": funcReasoner(func(ctx context.Context, req llm.Request) (llm.Response, error) {
			return llm.Response{}, errors.New("unavailable")
		}),
		"too long":    suggesting("a very long generalized tag"),
		"bad charset": suggesting("scaling_analysis!"),
		"empty":       suggesting("   "),
	}
	for name, reasoner := range cases {
		t.Run(name, func(t *testing.T) {
			g := NewGeneralizer(reasoner, 0)
			out, err := g.Generalize(ctx, "Step 2: Train the model on a large corpus", CategoryMethodology, nil)
			require.NoError(t, err)
			assert.False(t, out.FromModel)
			assert.Equal(t, "train-model-large", out.Name)
		})
	}
}

func TestGeneralizerAcceptsValidSuggestion(t *testing.T) {
	g := NewGeneralizer(suggesting(" Benchmark Evaluation "), 0)
	out, err := g.Generalize(context.Background(), "Evaluate performance on benchmark tasks", CategoryMethodology, nil)
	require.NoError(t, err)
	assert.True(t, out.FromModel)
	assert.Equal(t, "benchmark-evaluation", out.Name)
}

func TestGeneralizerPromptCarriesTermAndCategory(t *testing.T) {
	prompt := buildGeneralizePrompt("Implement attention mechanism", CategoryConcept, nil)
	assert.Contains(t, prompt, `Input term: "Implement attention mechanism"`)
	assert.Contains(t, prompt, "Category: concept")
	assert.True(t, strings.HasSuffix(prompt, "Similar existing tags: none\n"))
}

func TestResolveNonLatinTerms(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(NewMemoryRepo(), nil, nil)

	cjk, err := r.Resolve(ctx, "注意力机制", CategoryConcept)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, cjk.Action)
	assert.Equal(t, "注意力机制", cjk.Tag.Name)

	first, err := r.Resolve(ctx, "Schrödinger equation", CategoryConcept)
	require.NoError(t, err)
	assert.Equal(t, "schrodinger-equation", first.Tag.Name)
	again, err := r.Resolve(ctx, "Schrodinger Equation", CategoryConcept)
	require.NoError(t, err)
	assert.Equal(t, ActionExact, again.Action)
	assert.Equal(t, first.Tag.ID, again.Tag.ID)
}
