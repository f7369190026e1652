package storage

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrSerialization = errors.New("serialization error")
	ErrBackend       = errors.New("backend error")
	ErrValidation    = errors.New("validation error")
	ErrRestore       = errors.New("restore error")
)

// Error carries the failed operation, the logical key, the kind and the cause.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func NewError(op, key string, kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }
