package orchestrator

import (
	"strings"
	"testing"

	"github.com/mtgscribe/gateway/models"
)

func TestComposePromptIncludesSystemPromptFirst(t *testing.T) {
	messages := composePrompt(nil, nil, "what does deathtouch do")
	if len(messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatalf("expected first message to be system, got %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "Magic: The Gathering") {
		t.Fatalf("system prompt missing topic restriction: %q", messages[0].Content)
	}
	if messages[1].Role != "user" || messages[1].Content != "what does deathtouch do" {
		t.Fatalf("unexpected trailing message: %+v", messages[1])
	}
}

func TestComposePromptAppendsSummaryContext(t *testing.T) {
	conv := &models.Conversation{SummaryContext: "digest of prior rulings"}
	messages := composePrompt(conv, nil, "follow up question")
	if !strings.Contains(messages[0].Content, "digest of prior rulings") {
		t.Fatalf("expected summary context folded into system prompt, got %q", messages[0].Content)
	}
}

func TestComposePromptReplaysHistoryInOrder(t *testing.T) {
	history := []models.Turn{
		{UserMessage: "q1", AssistantResponse: "a1"},
		{UserMessage: "q2", AssistantResponse: "a2"},
	}
	messages := composePrompt(nil, history, "q3")
	if len(messages) != 6 { // system + 2*(user,assistant) + current user
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}
	wantRoles := []string{"system", "user", "assistant", "user", "assistant", "user"}
	for i, role := range wantRoles {
		if messages[i].Role != role {
			t.Fatalf("message %d: expected role %q, got %q", i, role, messages[i].Role)
		}
	}
	if messages[5].Content != "q3" {
		t.Fatalf("expected current message last, got %q", messages[5].Content)
	}
}

func TestComposePromptOmitsCurrentMessageWhenEmpty(t *testing.T) {
	messages := composePrompt(nil, nil, "")
	if len(messages) != 1 {
		t.Fatalf("expected only the system message, got %d", len(messages))
	}
}
