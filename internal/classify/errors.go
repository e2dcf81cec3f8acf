package classify

import "errors"

var (
	// ErrEmptyText means there was nothing to classify.
	ErrEmptyText = errors.New("classification text is empty")
	// ErrInvalidRules means the rule table is malformed.
	ErrInvalidRules = errors.New("invalid classification rules")
)
