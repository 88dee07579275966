package doc

import "errors"

var (
	ErrInvalidPosition   = errors.New("invalid document position")
	ErrInvalidRange      = errors.New("invalid document range")
	ErrContentNotAllowed = errors.New("content not allowed here")
	ErrNoNodeAtPosition  = errors.New("no node at position")
	ErrEmptyInsert       = errors.New("nothing to insert")
)
