package types

import (
	"errors"
	"fmt"
)

// Boundary error kinds. Components attach one of these to failures so the
// HTTP layer can map them onto status codes without inspecting messages.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// StatusError carries a caller-facing message plus the error kind it
// unwraps to. Error() returns the bare message so it can be surfaced to
// API clients verbatim.
type StatusError struct {
	Kind    error
	Message string
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) Unwrap() error { return e.Kind }

// Validationf builds a validation error with a caller-facing message.
func Validationf(format string, args ...any) error {
	return &StatusError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error with a caller-facing message.
func NotFoundf(format string, args ...any) error {
	return &StatusError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error with a caller-facing message.
func Conflictf(format string, args ...any) error {
	return &StatusError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}
