package insights

import "errors"

var (
	ErrNotFound     = errors.New("insight not found")
	ErrInvalidInput = errors.New("invalid insight")
)
