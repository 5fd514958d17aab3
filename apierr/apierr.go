// Package apierr is the gateway's typed error taxonomy. Components raise
// values of *Error carrying a Kind tag; only the HTTP layer maps a Kind
// to a status code and response body — no component formats HTTP itself.
package apierr

import "fmt"

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindInjectionDetected Kind = "invalid_request_detected"
	KindAuthRequired     Kind = "authentication_required"
	KindInvalidCreds     Kind = "invalid_credentials"
	KindInsufficientTier Kind = "insufficient_tier"
	KindRateLimited      Kind = "rate_limited"
	KindBudgetExceeded   Kind = "budget_exceeded"
	KindUpstreamDown     Kind = "upstream_unavailable"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal_error"
)

// FieldError is one entry of a validation error's details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the value every component raises on failure. Message is
// always safe to show a client; Internal, if set, is logged but never
// serialized.
type Error struct {
	Kind       Kind
	Message    string
	Details    []FieldError
	RetryAfter int // seconds, set for KindRateLimited
	Internal   error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Internal }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Internal: err}
}

func Validation(details []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Details: details}
}

func RateLimited(message string, retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfterSeconds}
}

// Internal-only server errors are always reported to the client with a
// generic message; the real cause is attached for logging.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "an unexpected error occurred", Internal: err}
}
