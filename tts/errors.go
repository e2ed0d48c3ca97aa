package tts

import "errors"

// Common sentinel errors.
var (
	// ErrEmptyText is returned when attempting to synthesize empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrSessionNotFound is returned for operations on an unknown session
	// handle.
	ErrSessionNotFound = errors.New("streaming session not found")

	// ErrSessionClosed is returned for operations on a terminal session.
	ErrSessionClosed = errors.New("streaming session is closed")
)

// ErrorKind classifies a canonical error. Every vendor failure is folded
// into exactly one of these kinds.
type ErrorKind int

// The canonical error taxonomy.
const (
	// KindInternal is an unclassified provider or transport failure.
	KindInternal ErrorKind = iota

	// KindUnauthorized is an authentication or authorization failure.
	KindUnauthorized

	// KindRateLimited means the provider throttled the request.
	KindRateLimited

	// KindInvalidInput means the request was rejected as malformed
	// (bad SSML, unknown voice, empty text, out-of-range settings).
	KindInvalidInput

	// KindUnsupportedOperation means the provider cannot perform the
	// operation at all.
	KindUnsupportedOperation

	// KindProviderUnavailable means the provider could not be reached or
	// reported itself down.
	KindProviderUnavailable

	// KindTimeout means an individual adapter call exceeded its deadline.
	KindTimeout
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Retryable reports whether errors of this kind are worth retrying.
// KindInternal is special-cased by the resilience engine: it is retried
// at most once.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindProviderUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is the canonical failure type surfaced by every component.
type Error struct {
	// Kind is the canonical classification.
	Kind ErrorKind

	// Provider is the originating provider name, when known.
	Provider string

	// Code is the provider-specific error code, when reported.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a canonical Error.
func NewError(kind ErrorKind, provider, code, message string, cause error) *Error {
	return &Error{
		Kind:     kind,
		Provider: provider,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// KindOf extracts the canonical kind from err. Errors that are not
// canonical report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPError is the raw failure adapters report for non-success HTTP
// responses. The normalizer folds it into the canonical taxonomy; adapters
// never classify beyond capturing what the wire said.
type HTTPError struct {
	// Provider is the adapter name.
	Provider string

	// Status is the HTTP status code.
	Status int

	// Code is the vendor error code from the response body, when present.
	Code string

	// Message is the vendor error message, when present.
	Message string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != "" {
		return e.Provider + ": " + msg + " (" + e.Code + ")"
	}
	return e.Provider + ": " + msg
}
