package tags

import "errors"

var (
	ErrNotFound        = errors.New("tag not found")
	ErrInvalidCategory = errors.New("invalid tag category")
	ErrInvalidName     = errors.New("invalid tag name")
	// ErrDimensionMismatch means two vectors cannot be compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
