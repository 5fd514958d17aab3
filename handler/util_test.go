package handler

import (
	"net/http/httptest"
	"testing"
)

func TestParseIntQueryDefaultsOnMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/chat/history", nil)
	if got := parseIntQuery(r, "limit", 50); got != 50 {
		t.Fatalf("expected default 50, got %d", got)
	}
}

func TestParseIntQueryParsesValue(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/chat/history?limit=10", nil)
	if got := parseIntQuery(r, "limit", 50); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestParseIntQueryDefaultsOnMalformed(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/chat/history?limit=abc", nil)
	if got := parseIntQuery(r, "limit", 50); got != 50 {
		t.Fatalf("expected default 50 on malformed input, got %d", got)
	}
}
