package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateChatBodyRejectsEmptyMessage(t *testing.T) {
	called := false
	h := ValidateChatBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"   "}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected handler not to be called for an empty message")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidateChatBodyRejectsOversizedMessage(t *testing.T) {
	h := ValidateChatBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	oversized := strings.Repeat("a", 4001)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"`+oversized+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidateChatBodyTrimsAndForwards(t *testing.T) {
	var seenBody string
	h := ValidateChatBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"  what does trample do?  "}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 0 && rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got status %d", rec.Code)
	}
	if !strings.Contains(seenBody, "what does trample do?") {
		t.Fatalf("expected trimmed message forwarded, got %q", seenBody)
	}
	if strings.Contains(seenBody, "  what does trample do?  ") {
		t.Fatalf("expected message to be trimmed, got %q", seenBody)
	}
}

func TestValidateAuthBodyRequiresEmailAndPassword(t *testing.T) {
	h := ValidateAuthBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"email":""}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
