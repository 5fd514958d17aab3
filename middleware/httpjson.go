package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mtgscribe/gateway/apierr"
)

// statusForKind maps the error taxonomy to an HTTP status code. This is
// the one place in the gateway that knows about HTTP — every component
// below it only ever raises a *apierr.Error.
func statusForKind(k apierr.Kind) int {
	switch k {
	case apierr.KindValidation, apierr.KindInjectionDetected:
		return http.StatusBadRequest
	case apierr.KindAuthRequired:
		return http.StatusUnauthorized
	case apierr.KindInvalidCreds:
		return http.StatusUnauthorized
	case apierr.KindInsufficientTier:
		return http.StatusForbidden
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	case apierr.KindBudgetExceeded:
		return http.StatusServiceUnavailable
	case apierr.KindUpstreamDown:
		return http.StatusServiceUnavailable
	case apierr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Details []apierr.FieldError `json:"details,omitempty"`
}

// WriteError serializes a *apierr.Error as the §7 JSON error shape.
// Internal causes are never serialized — only Kind/Message/Details.
func WriteError(w http.ResponseWriter, err *apierr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(err.Kind))
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   string(err.Kind),
		Message: err.Message,
		Details: err.Details,
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxPeekBytes = 64 * 1024

// peekMessageLength reads just enough of the body to learn the chat
// message's length for the token-budget and global-budget-gate checks,
// then returns a fresh io.ReadCloser so the schema validator (and the
// handler after it) can still read the full body from the start.
func peekMessageLength(r *http.Request) (int, io.ReadCloser, error) {
	if r.Body == nil {
		return 0, http.NoBody, nil
	}
	limited := io.LimitReader(r.Body, maxPeekBytes)
	raw, err := io.ReadAll(limited)
	r.Body.Close()
	if err != nil {
		return 0, nil, err
	}

	var payload chatRequestBody
	// A malformed body here is not this check's problem to reject; the
	// schema validator downstream will produce the real 400. Treat it as
	// a zero-length message so the budget checks stay permissive.
	_ = json.Unmarshal(raw, &payload)

	return len([]rune(payload.Message)), io.NopCloser(bytes.NewReader(raw)), nil
}
