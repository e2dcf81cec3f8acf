package documents

import "errors"

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyAnalyzed   = errors.New("document already analyzed")
	ErrInProgress        = errors.New("document analysis in progress")
)
