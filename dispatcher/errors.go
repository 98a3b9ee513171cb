// Package dispatcher implements the message dispatcher daemon: it
// loads XML service configurations, routes frames published by one
// service to every service that subscribes to that message id, and
// drives the transport over a chain.Chain (SPEC_FULL.md §4.D).
package dispatcher

import (
	"errors"
	"fmt"
)

// Code is dispatcher's slice of the shared error taxonomy (SPEC_FULL.md §7).
type Code string

const (
	CodeInvalidRequest Code = "invalid_request"
	CodeInvalidConfig  Code = "invalid_config"
	CodeUnavailable    Code = "unavailable"
	CodeFatal          Code = "fatal"
)

// Error is dispatcher's structured error type.
type Error struct {
	Op    string
	Code  Code
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("dispatcher: %s: %s: %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("dispatcher: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

func newErr(op string, code Code, inner error) error {
	return &Error{Op: op, Code: code, Inner: inner}
}

// ErrDuplicatePublisher is returned when two service configs declare
// themselves the publisher of the same message id. Decided as the
// resolution to SPEC_FULL.md's open question on duplicate publishers:
// load fails loudly rather than silently picking one.
var ErrDuplicatePublisher = errors.New("message id published by more than one service")
