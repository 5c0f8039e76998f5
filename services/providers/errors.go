package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures
type ErrorKind string

const (
	// KindUnconfigured means required credentials or settings are missing
	KindUnconfigured ErrorKind = "unconfigured"

	// KindTimeout means the call did not complete within its bound
	KindTimeout ErrorKind = "timeout"

	// KindAuth means the backend rejected the credentials
	KindAuth ErrorKind = "auth"

	// KindTransport means a network or service-level failure
	KindTransport ErrorKind = "transport"

	// KindInvalidResponse means the backend returned a malformed or empty payload
	KindInvalidResponse ErrorKind = "invalid_response"
)

// AdapterError represents a failed adapter attempt
type AdapterError struct {
	// Provider that generated the error
	Provider ID

	// Kind classifies the failure
	Kind ErrorKind

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError creates a new adapter error
func NewAdapterError(provider ID, kind ErrorKind, message string, statusCode int, cause error) *AdapterError {
	return &AdapterError{
		Provider:   provider,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ErrUnconfigured builds the error returned by adapters that are missing configuration
func ErrUnconfigured(provider ID, what string) *AdapterError {
	return NewAdapterError(provider, KindUnconfigured, what+" not configured", 0, nil)
}

// KindOf extracts the failure kind of err. Context deadline and cancellation
// errors that escaped an adapter are reported as timeouts; anything else
// unrecognized is a transport failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindTransport
}

// FromContext maps a context error raised during an attempt to a timeout
// AdapterError. It returns nil when ctx is still live.
func FromContext(ctx context.Context, provider ID, cause error) *AdapterError {
	if ctx.Err() == nil {
		return nil
	}
	if cause == nil {
		cause = ctx.Err()
	}
	return NewAdapterError(provider, KindTimeout, "request did not complete in time", 0, cause)
}
