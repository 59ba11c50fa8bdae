package forecast

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine surfaces to callers.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindOutOfRangeDate      ErrorKind = "out_of_range_date"
	KindInvalidCapacity     ErrorKind = "invalid_capacity"
	KindMissingLocation     ErrorKind = "missing_location"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUpstreamRejected    ErrorKind = "upstream_rejected"
	KindInternal            ErrorKind = "internal"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrOutOfRangeDate      = &Error{Kind: KindOutOfRangeDate}
	ErrInvalidCapacity     = &Error{Kind: KindInvalidCapacity}
	ErrMissingLocation     = &Error{Kind: KindMissingLocation}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUpstreamRejected    = &Error{Kind: KindUpstreamRejected}
	ErrInternal            = &Error{Kind: KindInternal}
)

// Error is a terminal request failure. Message is safe to show to callers;
// Err carries the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds an *Error with a formatted caller-facing message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so callers can match against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of err, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsUpstream reports whether the kind came from the forecast provider.
func (k ErrorKind) IsUpstream() bool {
	return k == KindUpstreamUnavailable || k == KindUpstreamRejected
}
