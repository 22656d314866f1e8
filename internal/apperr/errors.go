package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation and display purposes.
type Kind int

const (
	// KindValidation is malformed local input, rejected before any remote call.
	KindValidation Kind = iota + 1
	// KindTransport is a collaborator that was unreachable or returned a
	// non-success status.
	KindTransport
	// KindFormat is a collaborator that responded successfully but whose
	// payload did not match the expected shape.
	KindFormat
)

// ErrBusy rejects a request while another one is in flight for the same
// guarded resource. Callers are expected to retry via a new user action,
// requests are never queued.
var ErrBusy = errors.New("another request is already in progress")

// ErrNoSession gates every operation that requires an authenticated user.
var ErrNoSession = errors.New("no active session")

// Error carries a short user-visible message plus the underlying cause,
// which is logged but never shown to users.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-visible part only.
func (e *Error) Message() string { return e.Msg }

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Transport(msg string, err error) error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

func Format(msg string, err error) error {
	return &Error{Kind: KindFormat, Msg: msg, Err: err}
}

// KindOf reports the taxonomy kind of err, or 0 for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsTransport(err error) bool  { return KindOf(err) == KindTransport }
func IsFormat(err error) bool     { return KindOf(err) == KindFormat }

// UserMessage extracts the string safe to surface in the UI. Untyped
// errors fall back to a generic message so raw collaborator payloads
// never leak to users.
func UserMessage(err error) string {
	if errors.Is(err, ErrBusy) {
		return "Please wait for the current request to finish."
	}
	if errors.Is(err, ErrNoSession) {
		return "Please sign in first."
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "Something went wrong. Please try again."
}
