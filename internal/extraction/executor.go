package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"research-backend/internal/llm"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/telemetry"
	"research-backend/internal/textprep"
)

const (
	defaultStepAttempts = 3
	defaultStepTimeout  = 30 * time.Second
	// maxDocumentRunes bounds the document text sent with each step.
	maxDocumentRunes = 24000
)

// StepInput is the accumulated context for one step.
type StepInput struct {
	DocumentID string
	FullView   string
	Prior      []StepResult
}

// StepExecutor runs a single chain step with bounded retries.
type StepExecutor struct {
	Reasoner llm.Reasoner
	Attempts int
	Timeout  time.Duration
}

// NewStepExecutor returns an executor with defaults applied for zero values.
func NewStepExecutor(r llm.Reasoner, attempts int, timeout time.Duration) *StepExecutor {
	return &StepExecutor{Reasoner: r, Attempts: attempts, Timeout: timeout}
}

// Execute runs the step until an attempt validates or the attempt bound is
// reached. Every attempt runs detached from caller cancellation so a step is
// never abandoned midway; only the per-attempt timeout interrupts it.
// Reasoner errors, timeouts and invalid output all count as failed attempts.
func (e *StepExecutor) Execute(ctx context.Context, desc StepDescriptor, in StepInput) (StepResult, error) {
	attempts := e.Attempts
	if attempts <= 0 {
		attempts = defaultStepAttempts
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	req := llm.Request{
		System: systemPrompt(),
		Prompt: buildStepPrompt(desc, in),
		Schema: desc.Schema,
	}
	detached := context.WithoutCancel(ctx)
	started := time.Now()
	result := StepResult{StepName: desc.Name}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		content, conf, errs, err := e.attempt(detached, timeout, desc, req)
		if err == nil {
			result.Content = content
			result.Confidence = conf
			result.ValidationErrors = nil
			result.Succeeded = true
			result.ExecutionTimeMs = time.Since(started).Milliseconds()
			metrics.IncStepAttempt(desc.Name, "ok")
			metrics.ObserveStepDuration(desc.Name, time.Since(started))
			return result, nil
		}

		lastErr = err
		outcome := attemptOutcome(err)
		metrics.IncStepAttempt(desc.Name, outcome)
		if len(errs) > 0 {
			result.ValidationErrors = errs
		} else {
			result.ValidationErrors = []string{err.Error()}
		}
		telemetry.Warn("extraction.step.retry", map[string]any{
			"document_id": in.DocumentID,
			"step":        desc.Name,
			"attempt":     attempt,
			"max":         attempts,
			"outcome":     outcome,
			"error":       err,
		})
	}

	result.ExecutionTimeMs = time.Since(started).Milliseconds()
	metrics.ObserveStepDuration(desc.Name, time.Since(started))
	return result, fmt.Errorf("%w: %s after %d attempts: %w", ErrStepFailed, desc.Name, attempts, lastErr)
}

func (e *StepExecutor) attempt(ctx context.Context, timeout time.Duration, desc StepDescriptor, req llm.Request) (map[string]any, float64, []string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.Reasoner.Reason(attemptCtx, req)
	if err != nil {
		if attemptCtx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, 0, nil, err
	}
	if resp.Content == nil {
		return nil, 0, nil, fmt.Errorf("%w: empty response", ErrInvalidOutput)
	}
	if errs := desc.Check(resp.Content); len(errs) > 0 {
		return nil, 0, errs, fmt.Errorf("%w: %s", ErrInvalidOutput, strings.Join(errs, "; "))
	}

	conf := completeness(resp.Content, desc.Fields)
	if resp.Confidence != nil {
		conf = *resp.Confidence
	}
	return resp.Content, clamp01(conf), nil, nil
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInvalidOutput), errors.Is(err, llm.ErrMalformedOutput):
		return "invalid"
	default:
		return "error"
	}
}

func buildStepPrompt(desc StepDescriptor, in StepInput) string {
	var b strings.Builder
	b.WriteString(desc.Instruction)
	b.WriteString("\n\nPaper:\n")
	b.WriteString(textprep.Truncate(in.FullView, maxDocumentRunes))
	if len(in.Prior) > 0 {
		prior := make(map[string]any, len(in.Prior))
		for _, st := range in.Prior {
			prior[st.StepName] = st.Content
		}
		if data, err := json.MarshalIndent(prior, "", "  "); err == nil {
			b.WriteString("\n\nEarlier analysis steps:\n")
			b.Write(data)
		}
	}
	return b.String()
}
