package bbr

import "errors"

var (
	// ErrInvalidArgs is returned when a caller supplied a malformed value.
	ErrInvalidArgs = errors.New("invalid arguments")
	// ErrInvalidState is returned when an operation does not apply to the current role or attachment state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound is returned when the queried or removed object does not exist.
	ErrNotFound = errors.New("not found")
)
