package extraction

import (
	"context"
	"errors"
	"time"

	"research-backend/internal/insights"
	"research-backend/internal/textprep"
)

// ChainStrategy runs the step chain sequentially, feeding each step the
// results of all earlier ones.
type ChainStrategy struct {
	Steps    []StepDescriptor
	Executor *StepExecutor
	Budget   time.Duration
	Now      func() time.Time
}

// stepObserver is told about every finished step, validated or not.
type stepObserver func(st StepResult)

// Run executes the chain. Between steps it stops on caller cancellation
// (ErrCancelled) or when the budget measured from started is spent
// (ErrBudgetExceeded). A step that exhausts its attempts ends the chain with
// ErrStepFailed. A chain without a final executive synthesis step is
// rejected with ErrIncompleteChain before any step runs.
func (c *ChainStrategy) Run(ctx context.Context, in Input, started time.Time, observe stepObserver) (*ChainResult, error) {
	if n := len(c.Steps); n == 0 || c.Steps[n-1].Name != StepExecutiveSynthesis {
		return nil, ErrIncompleteChain
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	full := textprep.FullView(textprep.Source{
		Title:      in.Title,
		Abstract:   in.Abstract,
		Categories: in.Categories,
		FullText:   in.FullText,
	})

	var done []StepResult
	for _, desc := range c.Steps {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrCancelled, err)
		}
		if c.Budget > 0 && now().Sub(started) >= c.Budget {
			return nil, ErrBudgetExceeded
		}

		st, err := c.Executor.Execute(ctx, desc, StepInput{DocumentID: in.DocumentID, FullView: full, Prior: done})
		if observe != nil {
			observe(st)
		}
		if err != nil {
			return nil, err
		}
		done = append(done, st)
	}

	res := &ChainResult{Steps: done, SessionScore: SessionConfidence(done)}
	var drafts []insights.Draft
	for i, desc := range c.Steps {
		if desc.Project != nil {
			drafts = append(drafts, desc.Project(done[i])...)
		}
		if desc.Name == StepContributionSynthesis {
			if n, ok := numberField(done[i].Content, "novelty_score"); ok {
				v := clamp01(n)
				res.Novelty = &v
			}
		}
	}
	res.Items = drafts
	return res, nil
}
