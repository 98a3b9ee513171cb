// Package chain implements the single-threaded reactor ("chain") that
// composes chain objects (Utimer, Asocket, Assocket, Acsocket) into
// one cooperative event loop driven by a readiness-multiplexing
// select call (SPEC_FULL.md §4.C).
package chain

import (
	"errors"
	"fmt"
)

// Code is chain's slice of the shared error taxonomy (SPEC_FULL.md §7).
type Code string

const (
	CodeInvalidRequest Code = "invalid_request"
	CodeTransient      Code = "transient"
	CodePeerClosed     Code = "peer_closed"
	CodeUnavailable    Code = "unavailable"
	CodeFatal          Code = "fatal"
)

// Error is chain's structured error type.
type Error struct {
	Op    string
	Code  Code
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("chain: %s: %s: %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("chain: %s: %s", e.Op, e.Code)
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

// ErrNoFreeSlot is returned by Acsocket.ConnectTo when every asocket
// slot is in use. Assocket accepts connections without a slot limit
// and never returns it.
var ErrNoFreeSlot = newErr("connect", CodeUnavailable, errors.New("no free asocket slot"))
