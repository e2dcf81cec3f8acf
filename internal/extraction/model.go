package extraction

import (
	"slices"
	"time"

	"research-backend/internal/insights"
)

// Status is the lifecycle state of an extraction session.
type Status string

const (
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusFallbackUsed Status = "fallback_used"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further changes are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFallbackUsed || s == StatusFailed
}

// Method is the extraction path that produced a session's insights.
type Method string

const (
	MethodChain  Method = "chain"
	MethodLegacy Method = "legacy"
)

// StepResult records one chain step, successful or not.
type StepResult struct {
	StepName         string         `json:"stepName"`
	Content          map[string]any `json:"content"`
	Confidence       float64        `json:"confidence"`
	ValidationErrors []string       `json:"validationErrors"`
	ExecutionTimeMs  int64          `json:"executionTimeMs"`
	Attempts         int            `json:"attempts"`
	Succeeded        bool           `json:"succeeded"`
}

// Session is one extraction attempt on a document.
type Session struct {
	ID             string
	DocumentID     string
	Status         Status
	MethodUsed     Method
	FallbackUsed   bool
	FallbackReason string
	Confidence     float64
	Steps          []StepResult
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// ValidatedSteps counts the steps that passed validation.
func (s Session) ValidatedSteps() int {
	n := 0
	for _, st := range s.Steps {
		if st.Succeeded {
			n++
		}
	}
	return n
}

// Input is what the orchestrator needs to extract from one document.
type Input struct {
	DocumentID   string
	DocumentType string
	Title        string
	Abstract     string
	Categories   []string
	FullText     string
}

// Outcome is the tagged result of an extraction strategy. It is implemented
// only by *ChainResult and *LegacyResult.
type Outcome interface {
	Method() Method
	Drafts() []insights.Draft
	Confidence() float64
	NoveltyScore() *float64
	sealed()
}

// ChainResult is produced when all chain steps validated.
type ChainResult struct {
	Steps        []StepResult
	SessionScore float64
	Novelty      *float64
	Items        []insights.Draft
}

func (r *ChainResult) Method() Method { return MethodChain }
func (r *ChainResult) Drafts() []insights.Draft { return slices.Clone(r.Items) }
func (r *ChainResult) Confidence() float64 { return r.SessionScore }
func (r *ChainResult) NoveltyScore() *float64 { return r.Novelty }
func (r *ChainResult) sealed() {}

// LegacyResult is produced by the single-shot rubric method.
type LegacyResult struct {
	RubricID         string
	ValidationErrors map[insights.Type][]string
	Dropped          []insights.Type
	Score            float64
	Novelty          *float64
	Items            []insights.Draft
}

func (r *LegacyResult) Method() Method { return MethodLegacy }
func (r *LegacyResult) Drafts() []insights.Draft { return slices.Clone(r.Items) }
func (r *LegacyResult) Confidence() float64 { return r.Score }
func (r *LegacyResult) NoveltyScore() *float64 { return r.Novelty }
func (r *LegacyResult) sealed() {}

func cloneSession(s Session) Session {
	steps := make([]StepResult, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = cloneStep(st)
	}
	s.Steps = steps
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		s.CompletedAt = &at
	}
	return s
}

func cloneStep(st StepResult) StepResult {
	st.ValidationErrors = slices.Clone(st.ValidationErrors)
	if st.Content != nil {
		st.Content = deepCopyMap(st.Content)
	}
	return st
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
