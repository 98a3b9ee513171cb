package jiukun

import (
	"errors"
	"fmt"

	"github.com/jiufeng/jiutai/jiukun/internal/buddy"
	"github.com/jiufeng/jiutai/jiukun/internal/slab"
)

// Code is the high-level error taxonomy shared by jiukun, chain, and
// dispatcher (see SPEC_FULL.md §7). Each package defines its own Code
// type rather than importing a shared one, so that the leaf packages
// (buddy, slab) stay free of upward dependencies.
type Code string

const (
	// CodeOutOfMemory: allocator exhausted and not allowed to wait.
	CodeOutOfMemory Code = "out_of_memory"
	// CodeInvalidRequest: bad arguments (negative/oversize order,
	// oversize object).
	CodeInvalidRequest Code = "invalid_request"
	// CodeCorrupted: double-free or use of an address outside any
	// live slab.
	CodeCorrupted Code = "corrupted"
	// CodeFatal: an internal invariant was violated.
	CodeFatal Code = "fatal"
)

// Error is the structured error type returned by jiukun's public API.
type Error struct {
	Op    string
	Code  Code
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("jiukun: %s: %s: %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("jiukun: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// wrapErr classifies an error from the buddy/slab layers into the
// jiukun taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var invalidOrder *buddy.ErrInvalidOrder
	var oom *buddy.ErrOutOfMemory
	var slabOOM *slab.ErrOutOfMemory
	var outstanding *slab.ErrOutstandingObjects
	var doubleFree *slab.ErrDoubleFree

	switch {
	case errors.As(err, &invalidOrder):
		return &Error{Op: op, Code: CodeInvalidRequest, Inner: err}
	case errors.As(err, &oom), errors.As(err, &slabOOM):
		return &Error{Op: op, Code: CodeOutOfMemory, Inner: err}
	case errors.As(err, &outstanding):
		return &Error{Op: op, Code: CodeInvalidRequest, Inner: err}
	case errors.As(err, &doubleFree):
		return &Error{Op: op, Code: CodeCorrupted, Inner: err}
	default:
		return &Error{Op: op, Code: CodeFatal, Inner: err}
	}
}

// invalidErr wraps a plain validation error (not one originating from
// buddy/slab) as CodeInvalidRequest.
func invalidErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Code: CodeInvalidRequest, Inner: err}
}

// ErrTooLarge is returned by Alloc when size exceeds MaxMemorySize.
var ErrTooLarge = &Error{Op: "Alloc", Code: CodeInvalidRequest, Inner: errors.New("requested size exceeds MaxMemorySize")}
