package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider API failures for the sync engine.
type ErrorKind string

const (
	// KindAuth: credential rejected. The connection must be re-authorized.
	KindAuth ErrorKind = "auth"
	// KindRateLimited: provider throttled the call after bounded retries.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransport: network failure, timeout, or 5xx after bounded retries.
	KindTransport ErrorKind = "transport"
	// KindNotFound: record disappeared between directory and detail fetch.
	KindNotFound ErrorKind = "not_found"
)

// Error is the provider API error surfaced to callers.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a provider credential rejection.
func IsAuthError(err error) bool {
	return isKind(err, KindAuth)
}

// IsRateLimited reports whether err is a provider rate limit.
func IsRateLimited(err error) bool {
	return isKind(err, KindRateLimited)
}

// IsTransportError reports whether err is a network or 5xx failure.
func IsTransportError(err error) bool {
	return isKind(err, KindTransport)
}

// IsNotFound reports whether err is a missing provider record.
func IsNotFound(err error) bool {
	return isKind(err, KindNotFound)
}

func isKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
