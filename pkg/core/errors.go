package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for reporting and exit handling.
type ErrorKind string

// Error kinds.
const (
	ErrConfig   ErrorKind = "config"
	ErrInput    ErrorKind = "input"
	ErrStore    ErrorKind = "store"
	ErrInternal ErrorKind = "internal"
)

// ErrAlreadyAnalyzed is returned when a run id is already present in history.
var ErrAlreadyAnalyzed = errors.New("run already analyzed")

// Error is a classified error raised by an rqg operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitStatus is the process exit code for any rqg error.
func (e *Error) ExitStatus() int {
	return 1
}

// NewError wraps err with a kind and operation name. A nil err yields nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
