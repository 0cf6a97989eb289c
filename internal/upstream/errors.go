package upstream

import (
	"errors"
	"fmt"
)

// Kind is the typed error taxonomy every provider call collapses to.
type Kind string

const (
	Transient      Kind = "transient"
	RateLimited    Kind = "rate_limited"
	Unavailable    Kind = "unavailable"
	NotFound       Kind = "not_found"
	InvalidArgument Kind = "invalid_argument"
	NoKeyAvailable Kind = "no_key_available"
	Deadline       Kind = "deadline"
)

// Error is the typed error returned by every substrate call.
type Error struct {
	Kind     Kind
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream[%s]: %s: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("upstream[%s]: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, upstream.KindSentinel(upstream.Unavailable))
// style matching against the Kind by wrapping it as a sentinel-carrying
// *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError builds a typed *Error for a provider call failure.
func NewError(kind Kind, provider string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Cause: cause}
}

// KindSentinel builds a comparable *Error usable with errors.Is, e.g.
// errors.Is(err, upstream.KindSentinel(upstream.NotFound)).
func KindSentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// IsRetryable reports whether a call with this error kind should be
// retried by the substrate's retry policy.
func (k Kind) IsRetryable() bool {
	return k == Transient || k == RateLimited
}
