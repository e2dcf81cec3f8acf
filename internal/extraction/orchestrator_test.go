package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-backend/internal/insights"
	"research-backend/internal/llm"
)

func testInput() Input {
	return Input{
		DocumentID:   "doc-1",
		DocumentType: "conceptual_framework",
		Title:        "SparseFormer: Learned Block Sparse Attention",
		Abstract:     "We propose a framework for long context modeling.",
		Categories:   []string{"cs.CL"},
		FullText:     "Introduction. Attention is expensive. Method. Experiments.",
	}
}

func newTestOrchestrator(t *testing.T, r llm.Reasoner, stepTimeout time.Duration) (*Orchestrator, *MemoryRepo) {
	t.Helper()
	rubrics, err := DefaultRubricTable()
	require.NoError(t, err)
	repo := NewMemoryRepo()
	chain := &ChainStrategy{
		Steps:    DefaultChain(),
		Executor: NewStepExecutor(r, 3, stepTimeout),
		Budget:   3 * time.Minute,
	}
	legacy := &LegacyStrategy{Reasoner: r, Rubrics: rubrics, Timeout: time.Second}
	return NewOrchestrator(chain, legacy, repo), repo
}

func TestOrchestratorChainCompletes(t *testing.T) {
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		return okResponse(kind)
	})
	o, repo := newTestOrchestrator(t, r, time.Second)

	report, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	sess := report.Session
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, MethodChain, sess.MethodUsed)
	assert.False(t, sess.FallbackUsed)
	assert.Equal(t, 5, sess.ValidatedSteps())
	assert.InDelta(t, 0.8, sess.Confidence, 1e-9)
	assert.Zero(t, r.count(legacyCall))
	assert.Equal(t, []string{
		StepContentAnalysis, StepResearchElements, StepContributionSynthesis,
		StepPracticalImplications, StepExecutiveSynthesis,
	}, r.order)

	chainRes, ok := report.Outcome.(*ChainResult)
	require.True(t, ok)
	require.NotNil(t, chainRes.NoveltyScore())
	assert.InDelta(t, 0.72, *chainRes.NoveltyScore(), 1e-9)

	types := map[insights.Type]int{}
	for _, d := range report.Outcome.Drafts() {
		types[d.Type]++
	}
	assert.Equal(t, 1, types[insights.TypeKeyFinding])
	assert.Equal(t, 1, types[insights.TypeFramework])
	assert.Equal(t, 2, types[insights.TypeConcept])
	assert.Equal(t, 1, types[insights.TypeMethodology])
	assert.Equal(t, 1, types[insights.TypeLimitation])
	assert.Equal(t, 1, types[insights.TypeDataPoint])
	assert.Equal(t, 1, types[insights.TypeApplication])
	assert.Equal(t, 1, types[insights.TypeFutureWork])

	stored, err := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Len(t, stored.Steps, 5)
	require.NotNil(t, stored.CompletedAt)
}

func TestOrchestratorStepRecoversAfterTimeouts(t *testing.T) {
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		if kind == StepResearchElements && call <= 2 {
			<-ctx.Done()
			return llm.Response{}, ctx.Err()
		}
		return okResponse(kind)
	})
	o, _ := newTestOrchestrator(t, r, 30*time.Millisecond)

	report, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	sess := report.Session
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, MethodChain, sess.MethodUsed)
	assert.False(t, sess.FallbackUsed)
	assert.Empty(t, sess.FallbackReason)
	require.Len(t, sess.Steps, 5)
	assert.Equal(t, 3, sess.Steps[1].Attempts)
	assert.True(t, sess.Steps[1].Succeeded)
	assert.Zero(t, r.count(legacyCall))
	_, isChain := report.Outcome.(*ChainResult)
	assert.True(t, isChain)
}

func TestOrchestratorFallsBackWhenStepExhaustsRetries(t *testing.T) {
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		if kind == StepContributionSynthesis {
			return llm.Response{}, llm.ErrMalformedOutput
		}
		return okResponse(kind)
	})
	o, repo := newTestOrchestrator(t, r, time.Second)

	report, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	sess := report.Session
	assert.Equal(t, StatusFallbackUsed, sess.Status)
	assert.Equal(t, MethodLegacy, sess.MethodUsed)
	assert.True(t, sess.FallbackUsed)
	assert.Contains(t, sess.FallbackReason, StepContributionSynthesis)
	assert.Equal(t, 3, r.count(StepContributionSynthesis))
	assert.Equal(t, 1, r.count(legacyCall))
	assert.Zero(t, r.count(StepPracticalImplications))

	require.Len(t, sess.Steps, 3)
	assert.False(t, sess.Steps[2].Succeeded)
	assert.NotEmpty(t, sess.Steps[2].ValidationErrors)

	legacyRes, ok := report.Outcome.(*LegacyResult)
	require.True(t, ok)
	assert.Equal(t, "framework_default", legacyRes.RubricID)
	drafts := report.Outcome.Drafts()
	require.NotEmpty(t, drafts)
	assert.True(t, hasDraft(drafts, insights.TypeKeyFinding))

	stored, err := repo.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.FallbackUsed)
	assert.Equal(t, StatusFallbackUsed, stored.Status)
}

func TestOrchestratorFallbackFailure(t *testing.T) {
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		if kind == StepContentAnalysis || kind == legacyCall {
			return llm.Response{}, errors.New("upstream unavailable")
		}
		return okResponse(kind)
	})
	o, repo := newTestOrchestrator(t, r, time.Second)

	report, err := o.Run(context.Background(), testInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFallbackFailed)
	assert.Nil(t, report.Outcome)
	assert.Equal(t, StatusFailed, report.Session.Status)
	assert.True(t, report.Session.FallbackUsed)

	stored, err := repo.GetByID(context.Background(), report.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestChainRejectsIncompleteSteps(t *testing.T) {
	full := DefaultChain()
	cases := map[string][]StepDescriptor{
		"empty":           nil,
		"missing final":   full[:len(full)-1],
		"synthesis moved": append([]StepDescriptor{full[len(full)-1]}, full[:len(full)-1]...),
	}
	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
				return okResponse(kind)
			})
			chain := &ChainStrategy{Steps: steps, Executor: NewStepExecutor(r, 3, time.Second)}

			res, err := chain.Run(context.Background(), testInput(), time.Now(), nil)
			assert.ErrorIs(t, err, ErrIncompleteChain)
			assert.Nil(t, res)
			assert.Empty(t, r.order)
		})
	}
}

func TestOrchestratorFallsBackOnIncompleteChain(t *testing.T) {
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		return okResponse(kind)
	})
	o, _ := newTestOrchestrator(t, r, time.Second)
	o.Chain.Steps = DefaultChain()[:3]

	report, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, MethodLegacy, report.Session.MethodUsed)
	assert.True(t, report.Session.FallbackUsed)
	assert.NotEqual(t, StatusCompleted, report.Session.Status)
	assert.Equal(t, 1, r.count(legacyCall))
}

func TestOrchestratorCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newScripted(func(callCtx context.Context, kind string, call int) (llm.Response, error) {
		if kind == StepContentAnalysis {
			cancel()
		}
		return okResponse(kind)
	})
	o, _ := newTestOrchestrator(t, r, time.Second)

	report, err := o.Run(ctx, testInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusFailed, report.Session.Status)
	assert.False(t, report.Session.FallbackUsed)
	// The in-flight step finished before the chain stopped.
	require.Len(t, report.Session.Steps, 1)
	assert.True(t, report.Session.Steps[0].Succeeded)
	assert.Zero(t, r.count(legacyCall))
	assert.Zero(t, r.count(StepResearchElements))
}

func TestOrchestratorBudgetTriggersFallback(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
		clock.Advance(2 * time.Minute)
		return okResponse(kind)
	})
	o, _ := newTestOrchestrator(t, r, time.Second)
	o.Now = clock.Now
	o.Chain.Now = clock.Now

	report, err := o.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Session.ValidatedSteps())
	assert.Equal(t, StatusFallbackUsed, report.Session.Status)
	assert.Contains(t, report.Session.FallbackReason, ErrBudgetExceeded.Error())
	assert.Equal(t, 1, r.count(legacyCall))
}

func TestChainNeverCompletesWithFailedStep(t *testing.T) {
	steps := []string{
		StepContentAnalysis, StepResearchElements, StepContributionSynthesis,
		StepPracticalImplications, StepExecutiveSynthesis,
	}
	for _, failing := range steps {
		t.Run(failing, func(t *testing.T) {
			r := newScripted(func(ctx context.Context, kind string, call int) (llm.Response, error) {
				if kind == failing {
					return llm.Response{Content: map[string]any{"unexpected": true}}, nil
				}
				return okResponse(kind)
			})
			o, _ := newTestOrchestrator(t, r, time.Second)

			report, err := o.Run(context.Background(), testInput())
			require.NoError(t, err)
			sess := report.Session
			assert.NotEqual(t, StatusCompleted, sess.Status)
			assert.Equal(t, MethodLegacy, sess.MethodUsed)
			assert.Less(t, sess.ValidatedSteps(), 5)
		})
	}
}

func TestSessionConfidenceWeighsFinalStep(t *testing.T) {
	steps := []StepResult{
		{Confidence: 0.6}, {Confidence: 0.6}, {Confidence: 0.6}, {Confidence: 0.6}, {Confidence: 1.0},
	}
	// 0.75*1.0 + 0.25*0.6
	assert.InDelta(t, 0.9, SessionConfidence(steps), 1e-9)
	assert.Zero(t, SessionConfidence(nil))
}

func TestSessionConfidenceIsMonotonic(t *testing.T) {
	levels := []float64{0, 0.2, 0.5, 0.7, 1}
	for i := 0; i < 5; i++ {
		for _, base := range levels {
			for _, raised := range levels {
				if raised < base {
					continue
				}
				before := uniformSteps(0.5)
				after := uniformSteps(0.5)
				before[i].Confidence = base
				after[i].Confidence = raised
				require.GreaterOrEqual(t, SessionConfidence(after), SessionConfidence(before),
					"step %d: raising %.1f to %.1f lowered confidence", i, base, raised)
			}
		}
	}
}

func uniformSteps(conf float64) []StepResult {
	steps := make([]StepResult, 5)
	for i := range steps {
		steps[i].Confidence = conf
	}
	return steps
}

func TestMemoryRepoRejectsChangesAfterFinish(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	sess := Session{ID: "01H", DocumentID: "doc-1", Status: StatusInProgress, MethodUsed: MethodChain, StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, sess))
	require.NoError(t, repo.AppendStep(ctx, sess.ID, 0, StepResult{StepName: StepContentAnalysis, Succeeded: true}))
	assert.ErrorIs(t, repo.AppendStep(ctx, sess.ID, 5, StepResult{}), ErrSessionClosed)

	sess.Status = StatusCompleted
	require.NoError(t, repo.Finish(ctx, sess))
	assert.ErrorIs(t, repo.AppendStep(ctx, sess.ID, 1, StepResult{}), ErrSessionClosed)
	assert.ErrorIs(t, repo.Finish(ctx, sess), ErrSessionClosed)

	listed, err := repo.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Steps, 1)
}
