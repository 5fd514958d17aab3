package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mtgscribe/gateway/apierr"
)

const (
	minMessageRunes = 1
	maxMessageRunes = 4000
)

// chatRequest is the validated shape of POST /api/chat's body. Message
// is trimmed before the length bound is enforced; ConversationID is
// optional and unvalidated here — the orchestrator rejects an unowned
// or unknown id on its own.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// ValidateChatBody is admission-chain step 6. It trims the message,
// enforces 1 ≤ len ≤ 4000 code points, and rewrites the request body
// with the trimmed message so the handler doesn't re-trim.
func ValidateChatBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				WriteError(w, apierr.New(apierr.KindValidation, "request body could not be read"))
				return
			}
		}

		var req chatRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				WriteError(w, apierr.Validation([]apierr.FieldError{{Field: "message", Message: "body must be valid JSON"}}))
				return
			}
		}

		req.Message = strings.TrimSpace(req.Message)
		runeLen := len([]rune(req.Message))
		if runeLen < minMessageRunes || runeLen > maxMessageRunes {
			WriteError(w, apierr.Validation([]apierr.FieldError{{Field: "message", Message: "message must be between 1 and 4000 characters"}}))
			return
		}

		rewritten, err := json.Marshal(req)
		if err != nil {
			WriteError(w, apierr.Internal(err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(rewritten))
		r.ContentLength = int64(len(rewritten))
		next.ServeHTTP(w, r)
	})
}

// authRequest is the validated shape of register/login bodies.
type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidateAuthBody enforces that register/login requests carry a
// non-empty email and password; the real strength/shape checks run in
// credvault, called from sessionmgr, which turns password-strength
// failures into field-level errors.
func ValidateAuthBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				WriteError(w, apierr.New(apierr.KindValidation, "request body could not be read"))
				return
			}
		}

		var req authRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				WriteError(w, apierr.Validation([]apierr.FieldError{{Field: "email", Message: "body must be valid JSON"}}))
				return
			}
		}
		var details []apierr.FieldError
		if strings.TrimSpace(req.Email) == "" {
			details = append(details, apierr.FieldError{Field: "email", Message: "email is required"})
		}
		if req.Password == "" {
			details = append(details, apierr.FieldError{Field: "password", Message: "password is required"})
		}
		if len(details) > 0 {
			WriteError(w, apierr.Validation(details))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
