// Package olympuserr defines the error-kind taxonomy shared by every
// core component so that failures can be propagated as values with a
// stable kind instead of ad-hoc string matching.
package olympuserr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error recognized by the supervision and
// recovery logic. Business errors never carry a Kind beyond what is
// listed here; anything else is treated as an unclassified failure.
type Kind string

const (
	NotFound        Kind = "not_found"
	AlreadyRunning  Kind = "already_running"
	InvalidCommand  Kind = "invalid_command"
	InvalidQuery    Kind = "invalid_query"
	Timeout         Kind = "timeout"
	StoreTransient  Kind = "store_transient"
	StoreFatal      Kind = "store_fatal"
	Conflict        Kind = "conflict"
	Backpressure    Kind = "backpressure"
	CircuitOpen     Kind = "circuit_open"
	ConnectionClose Kind = "connection_closed"
	HeartbeatLost   Kind = "heartbeat_lost"
	Panic           Kind = "panic"
)

// Error is a kinded error value. It wraps an optional underlying
// cause and always reports a stable Kind so that supervisors and
// callers can branch on it with errors.As.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, olympuserr.New(kind, "", "")) style kind
// comparisons without requiring the reason or op to match.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a kinded error.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap constructs a kinded error around an existing cause.
func Wrap(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf extracts the Kind of err, if any, returning ok=false when err
// is nil or not a tagged *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is tagged with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
