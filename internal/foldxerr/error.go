// Package foldxerr defines the error kinds surfaced by the Fold core and
// the propagation policy attached to each one.
package foldxerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry, logging, and
// caller-visible degradation policy.
type Kind string

const (
	InvalidInput Kind = "invalid_input"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Integrity    Kind = "integrity"
	LlmRequest   Kind = "llm_request"
	LlmExhausted Kind = "llm_exhausted"
	Embed        Kind = "embed"
	Vector       Kind = "vector"
	Storage      Kind = "storage"
	Cancelled    Kind = "cancelled"
	Timeout      Kind = "timeout"
	GitDirty     Kind = "git_dirty"
)

// Error is a typed error carrying one of the kinds above plus an
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf extracts the kind of err, or "" if err doesn't carry one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
