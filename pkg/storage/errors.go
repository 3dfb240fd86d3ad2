// Package storage holds what the storage backends share: the error taxonomy the
// search engine and the change ledger rely on.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced sticker, tag, task or user is missing.
var ErrNotFound = errors.New("not found")

// Error wraps a failure of the storage backend. Callers propagate it unchanged.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err and an *Error otherwise. ErrNotFound is kept
// as is so errors.Is keeps working without unwrapping.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &Error{Op: op, Err: err}
}
