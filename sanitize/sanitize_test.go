package sanitize_test

import (
	"strings"
	"testing"

	"github.com/mtgscribe/gateway/sanitize"
)

func TestInputStripsNULsAndCollapsesWhitespace(t *testing.T) {
	got := sanitize.Input("hello\x00   world\n\n\tthere")
	if got != "hello world there" {
		t.Fatalf("got %q", got)
	}
}

func TestInputTruncatesTo4000Runes(t *testing.T) {
	got := sanitize.Input(strings.Repeat("a", 5000))
	if len([]rune(got)) != 4000 {
		t.Fatalf("got length %d, want 4000", len([]rune(got)))
	}
}

func TestOutputStripsScriptTags(t *testing.T) {
	got := sanitize.Output(`Here is the answer.<script>alert(1)</script>`)
	if strings.Contains(got, "<script>") || strings.Contains(got, "alert(1)") {
		t.Fatalf("script content survived sanitization: %q", got)
	}
}

func TestOutputTruncatesWithMarker(t *testing.T) {
	got := sanitize.Output(strings.Repeat("a", 10500))
	if !strings.HasSuffix(got, "[response truncated]") {
		t.Fatalf("expected truncation marker suffix, got tail %q", got[len(got)-40:])
	}
}
