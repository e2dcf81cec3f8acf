package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"research-backend/internal/classify"
	"research-backend/internal/documents"
	"research-backend/internal/extraction"
	"research-backend/internal/insights"
	"research-backend/internal/llm"
	"research-backend/internal/queue"
	"research-backend/internal/tags"
)

const legacyKind = "legacy"

var keyFindingFields = []string{
	"main_contribution",
	"significance",
	"practical_impact",
	"surprising_insight",
	"problem_solved",
	"audience_hook",
	"field_advancement",
}

func requestKind(req llm.Request) string {
	props, _ := req.Schema["properties"].(map[string]any)
	switch {
	case props["key_finding"] != nil:
		return legacyKind
	case props["main_topics"] != nil:
		return extraction.StepContentAnalysis
	case props["problem_statement"] != nil:
		return extraction.StepResearchElements
	case props["key_findings"] != nil:
		return extraction.StepContributionSynthesis
	case props["target_audiences"] != nil:
		return extraction.StepPracticalImplications
	case props["audience_hook"] != nil:
		return extraction.StepExecutiveSynthesis
	}
	return "unknown"
}

// stubReasoner answers every chain step and the legacy call with valid
// content unless the kind is marked as failing.
type stubReasoner struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error

	// hook runs before each answer.
	hook func(kind string)
}

func newStubReasoner() *stubReasoner {
	return &stubReasoner{calls: map[string]int{}, fail: map[string]error{}}
}

func (r *stubReasoner) failing(err error, kinds ...string) *stubReasoner {
	for _, k := range kinds {
		r.fail[k] = err
	}
	return r
}

func (r *stubReasoner) Reason(ctx context.Context, req llm.Request) (llm.Response, error) {
	kind := requestKind(req)
	r.mu.Lock()
	r.calls[kind]++
	err := r.fail[kind]
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(kind)
	}
	if err != nil {
		return llm.Response{}, err
	}
	conf := 0.8
	return llm.Response{Content: stepContent(kind), Confidence: &conf}, nil
}

func (r *stubReasoner) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[kind]
}

func (r *stubReasoner) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func keyFinding() map[string]any {
	out := map[string]any{}
	for _, name := range keyFindingFields {
		out[name] = name + " text"
	}
	return out
}

func stepContent(kind string) map[string]any {
	switch kind {
	case extraction.StepContentAnalysis:
		return map[string]any{
			"sections":            []any{"introduction", "method", "experiments"},
			"main_topics":         []any{"sparse attention", "long context"},
			"research_domain":     "natural language processing",
			"methodology_signals": []any{"benchmarks"},
			"framework": map[string]any{
				"name":         "SparseFormer",
				"core_concept": "block sparse attention",
				"components":   []any{"router", "block attention"},
			},
		}
	case extraction.StepResearchElements:
		return map[string]any{
			"problem_statement": "attention is quadratic in sequence length",
			"hypotheses":        []any{"sparsity preserves quality"},
			"methods":           []any{"block sparse attention"},
			"method_detail":     "tokens attend within routed blocks",
		}
	case extraction.StepContributionSynthesis:
		return map[string]any{
			"key_findings":  []any{"linear memory with equal perplexity"},
			"novelty":       "learned block routing",
			"novelty_score": 0.72,
			"innovations":   []any{"learned routing"},
			"significance":  "makes long documents affordable",
			"limitations":   []any{"only tested on text"},
			"metrics":       []any{map[string]any{"name": "perplexity", "value": "18.2"}},
		}
	case extraction.StepPracticalImplications:
		return map[string]any{
			"applications":      []any{"document summarization"},
			"target_audiences":  []any{"ml engineers"},
			"problem_domain":    "long document processing",
			"future_directions": []any{"multimodal inputs"},
		}
	case extraction.StepExecutiveSynthesis:
		return keyFinding()
	case legacyKind:
		return map[string]any{
			"key_finding": keyFinding(),
			"framework": map[string]any{
				"name":         "SparseFormer",
				"core_concept": "block sparse attention",
				"components":   []any{"router", "block attention"},
				"innovations":  []any{"learned routing"},
			},
			"novelty_score": 0.6,
		}
	}
	return map[string]any{}
}

type recordingQueue struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

type fixture struct {
	svc      *Service
	docs     *documents.MemoryRepo
	sessions *extraction.MemoryRepo
	insights *insights.MemoryRepo
	tags     *tags.MemoryRepo
	reasoner *stubReasoner
	queue    *recordingQueue
}

func newFixture(t *testing.T, r *stubReasoner) *fixture {
	t.Helper()
	table, err := classify.DefaultTable()
	require.NoError(t, err)
	rubrics, err := extraction.DefaultRubricTable()
	require.NoError(t, err)

	f := &fixture{
		docs:     documents.NewMemoryRepo(),
		sessions: extraction.NewMemoryRepo(),
		insights: insights.NewMemoryRepo(),
		tags:     tags.NewMemoryRepo(),
		reasoner: r,
		queue:    &recordingQueue{},
	}
	chain := &extraction.ChainStrategy{
		Steps:    extraction.DefaultChain(),
		Executor: extraction.NewStepExecutor(r, 1, time.Second),
		Budget:   time.Minute,
	}
	legacy := &extraction.LegacyStrategy{Reasoner: r, Rubrics: rubrics, Timeout: time.Second}
	f.svc = &Service{
		Documents:   &documents.Service{Repo: f.docs},
		Scorer:      classify.NewScorer(table),
		Router:      classify.NewRouter(f.docs),
		Extractor:   extraction.NewOrchestrator(chain, legacy, f.sessions),
		Insights:    &insights.Service{Repo: f.insights},
		Tags:        tags.NewResolver(f.tags, nil, nil),
		Queue:       f.queue,
		Concurrency: 2,
	}
	return f
}

// frameworkPaper classifies as a confident conceptual framework.
func frameworkPaper() documents.NewDocument {
	return documents.NewDocument{
		Title: "We Propose a Novel Framework for Sparse Attention",
		Abstract: "We present a new architecture for efficient sequence modeling. " +
			"Experiments on standard benchmarks show strong results, and the model is deployed in production at scale.",
	}
}

// noisePaper matches no classification pattern.
func noisePaper() documents.NewDocument {
	return documents.NewDocument{Title: "zzqx", Abstract: "qqvv wwpp"}
}

func (f *fixture) create(t *testing.T, in documents.NewDocument) documents.Document {
	t.Helper()
	doc, err := f.svc.Documents.Create(context.Background(), in)
	require.NoError(t, err)
	return doc
}
