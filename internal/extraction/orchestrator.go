package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/telemetry"
)

// Report is what one extraction run returns to the caller. Outcome has the
// same shape whichever strategy produced it; it is nil when both failed.
type Report struct {
	Session Session
	Outcome Outcome
}

// Orchestrator picks between the chain and the legacy strategy and records
// the session.
type Orchestrator struct {
	Chain    *ChainStrategy
	Legacy   *LegacyStrategy
	Sessions SessionRepo
	Now      func() time.Time

	ids *idSource
}

// NewOrchestrator wires the chain, the legacy fallback and the session store.
func NewOrchestrator(chain *ChainStrategy, legacy *LegacyStrategy, sessions SessionRepo) *Orchestrator {
	return &Orchestrator{Chain: chain, Legacy: legacy, Sessions: sessions, Now: time.Now, ids: newIDSource()}
}

// Run extracts insights for one document. It returns ErrCancelled when the
// caller abandoned the chain between steps and ErrFallbackFailed when both
// strategies failed; the session is terminal in every case.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Report, error) {
	now := o.now()
	if o.ids == nil {
		o.ids = newIDSource()
	}
	sess := Session{
		ID:         o.ids.next(now),
		DocumentID: in.DocumentID,
		Status:     StatusInProgress,
		MethodUsed: MethodChain,
		StartedAt:  now.UTC(),
	}
	if err := o.Sessions.Create(ctx, sess); err != nil {
		return Report{}, fmt.Errorf("create session: %w", err)
	}
	persist := context.WithoutCancel(ctx)

	chainRes, chainErr := o.Chain.Run(ctx, in, now, func(st StepResult) {
		seq := len(sess.Steps)
		sess.Steps = append(sess.Steps, st)
		if err := o.Sessions.AppendStep(persist, sess.ID, seq, st); err != nil {
			telemetry.Error("extraction.step.persist_failed", map[string]any{
				"session_id": sess.ID,
				"step":       st.StepName,
				"error":      err,
			})
		}
	})

	var (
		outcome Outcome
		runErr  error
	)
	switch {
	case chainErr == nil:
		sess.Status = StatusCompleted
		sess.Confidence = chainRes.Confidence()
		outcome = chainRes
	case errors.Is(chainErr, ErrCancelled):
		sess.Status = StatusFailed
		sess.FallbackReason = chainErr.Error()
		runErr = chainErr
	default:
		sess.FallbackUsed = true
		sess.FallbackReason = chainErr.Error()
		sess.MethodUsed = MethodLegacy
		telemetry.Warn("extraction.fallback", map[string]any{
			"document_id": in.DocumentID,
			"session_id":  sess.ID,
			"reason":      chainErr,
			"steps":       len(sess.Steps),
		})
		legacyRes, legacyErr := o.runLegacy(ctx, in)
		if legacyErr == nil {
			sess.Status = StatusFallbackUsed
			sess.Confidence = legacyRes.Confidence()
			outcome = legacyRes
		} else {
			sess.Status = StatusFailed
			runErr = fmt.Errorf("%w: chain: %v; legacy: %w", ErrFallbackFailed, chainErr, legacyErr)
			telemetry.Error("extraction.fallback_failed", map[string]any{
				"document_id": in.DocumentID,
				"session_id":  sess.ID,
				"trace":       sessionTrace(sess),
				"error":       legacyErr,
			})
		}
	}

	completed := o.now().UTC()
	sess.CompletedAt = &completed
	if err := o.Sessions.Finish(persist, sess); err != nil {
		return Report{Session: sess, Outcome: outcome}, errors.Join(runErr, fmt.Errorf("finish session: %w", err))
	}
	metrics.IncExtractionSession(string(sess.MethodUsed), string(sess.Status))
	telemetry.Info("extraction.session", map[string]any{
		"document_id": in.DocumentID,
		"session_id":  sess.ID,
		"status":      sess.Status,
		"method":      sess.MethodUsed,
		"confidence":  sess.Confidence,
		"steps":       len(sess.Steps),
		"duration_ms": completed.Sub(sess.StartedAt).Milliseconds(),
	})
	return Report{Session: sess, Outcome: outcome}, runErr
}

func (o *Orchestrator) runLegacy(ctx context.Context, in Input) (*LegacyResult, error) {
	if o.Legacy == nil {
		return nil, errors.New("legacy extraction not configured")
	}
	return o.Legacy.Run(ctx, in)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func sessionTrace(s Session) []map[string]any {
	out := make([]map[string]any, 0, len(s.Steps))
	for _, st := range s.Steps {
		out = append(out, map[string]any{
			"step":              st.StepName,
			"succeeded":         st.Succeeded,
			"attempts":          st.Attempts,
			"validation_errors": st.ValidationErrors,
			"execution_ms":      st.ExecutionTimeMs,
		})
	}
	return out
}
