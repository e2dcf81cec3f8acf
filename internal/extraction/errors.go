package extraction

import "errors"

var (
	// ErrStepFailed wraps the last cause of a step that exhausted its attempts.
	ErrStepFailed = errors.New("extraction step failed")
	// ErrFallbackFailed means both the chain and the legacy method failed.
	ErrFallbackFailed = errors.New("extraction fallback failed")
	// ErrBudgetExceeded means the session ran past its wall-clock budget.
	ErrBudgetExceeded = errors.New("extraction session budget exceeded")
	// ErrCancelled means the caller abandoned the session between steps.
	ErrCancelled = errors.New("extraction cancelled")
	// ErrInvalidOutput means a reasoning response failed structural validation.
	ErrInvalidOutput = errors.New("invalid step output")
	// ErrIncompleteChain means the chain has no steps or does not end in the
	// executive synthesis.
	ErrIncompleteChain = errors.New("extraction chain is incomplete")
	// ErrInvalidRubric means the legacy rubric table is malformed.
	ErrInvalidRubric = errors.New("invalid extraction rubric")

	ErrSessionNotFound = errors.New("extraction session not found")
	ErrSessionClosed   = errors.New("extraction session is terminal")
)
