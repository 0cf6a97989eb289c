// Package apierr maps internal upstream/provider error kinds onto the
// public error vocabulary that cmd/factord reports when a subcommand
// fails on an upstream error.
package apierr

import (
	"errors"
	"net/http"

	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Code is the stable public error code returned in API responses,
// independent of the upstream.Kind taxonomy so a future provider
// change never alters the public contract.
type Code string

const (
	CodeRateLimited     Code = "rate_limited"
	CodeUnavailable     Code = "upstream_unavailable"
	CodeNotFound        Code = "not_found"
	CodeInvalidArgument Code = "invalid_argument"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal"
)

// APIError is the shape serialized to clients.
type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return string(e.Code) + ": " + e.Message }

// FromUpstream classifies err, unwrapping an *upstream.Error when
// present and falling back to CodeInternal for anything else (a
// persistence error, a programming error, etc).
func FromUpstream(err error) *APIError {
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case upstream.RateLimited, upstream.NoKeyAvailable:
			return &APIError{Code: CodeRateLimited, Message: err.Error()}
		case upstream.Unavailable, upstream.Transient:
			return &APIError{Code: CodeUnavailable, Message: err.Error()}
		case upstream.NotFound:
			return &APIError{Code: CodeNotFound, Message: err.Error()}
		case upstream.InvalidArgument:
			return &APIError{Code: CodeInvalidArgument, Message: err.Error()}
		case upstream.Deadline:
			return &APIError{Code: CodeTimeout, Message: err.Error()}
		}
	}
	return &APIError{Code: CodeInternal, Message: err.Error()}
}

// HTTPStatus returns the status code a handler should write for code.
func HTTPStatus(code Code) int {
	switch code {
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
