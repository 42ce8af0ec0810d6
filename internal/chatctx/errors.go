package chatctx

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for seeds that were never ensured.
var ErrNotFound = errors.New("conversation not found")

// NotFoundError names the missing conversation.
type NotFoundError struct {
	Seed string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %q", ErrNotFound, e.Seed)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
