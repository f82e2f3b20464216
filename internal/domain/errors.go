package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid marks input that failed domain validation.
	ErrInvalid = errors.New("invalid input")
	// ErrNotFound is returned when a record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
