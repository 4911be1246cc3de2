package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/types"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestBuildConversationKey(t *testing.T) {
	key := buildConversationKey(12345, 67890)
	if string(key) != "telegram:12345:67890" {
		t.Errorf("expected 'telegram:12345:67890', got %q", key)
	}
}

func TestReplyForAnswer(t *testing.T) {
	out := &conversation.Outcome{Snapshot: conversation.Snapshot{Messages: []types.Message{
		{Role: types.RoleUser, Content: "q"},
		{Role: types.RoleAssistant, Content: "partial"},
		{Role: types.RoleAssistant, Content: conversation.Apology},
	}}}
	got := replyFor(out, 3)
	if got != "partial\n\n"+conversation.Apology {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestReplyForRejection(t *testing.T) {
	got := replyFor(&conversation.Outcome{Rejected: conversation.RejectUpgradeRequired}, 3)
	if !strings.Contains(got, "3 free questions") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestReplyForNoAnswer(t *testing.T) {
	out := &conversation.Outcome{Snapshot: conversation.Snapshot{Messages: []types.Message{
		{Role: types.RoleUser, Content: "q"},
	}}}
	if got := replyFor(out, 3); got != conversation.Apology {
		t.Errorf("expected apology, got %q", got)
	}
}

func TestFormatModels(t *testing.T) {
	got := formatModels(models.Default().All(), "gemini-flash")
	if !strings.Contains(got, "> gemini-flash") {
		t.Errorf("current model not marked: %q", got)
	}
	if !strings.Contains(got, "[premium]") {
		t.Errorf("tiers not shown: %q", got)
	}
}

func TestHandleable(t *testing.T) {
	from := &tgbotapi.User{ID: 42}
	chat := &tgbotapi.Chat{ID: 7}
	cases := []struct {
		name string
		msg  *tgbotapi.Message
		want bool
	}{
		{"nil", nil, false},
		{"no sender", &tgbotapi.Message{Chat: chat, Text: "hi"}, false},
		{"no chat", &tgbotapi.Message{From: from, Text: "hi"}, false},
		{"empty", &tgbotapi.Message{From: from, Chat: chat}, false},
		{"text", &tgbotapi.Message{From: from, Chat: chat, Text: "hi"}, true},
		{"document", &tgbotapi.Message{From: from, Chat: chat, Document: &tgbotapi.Document{FileID: "f"}}, true},
	}
	for _, tc := range cases {
		if got := handleable(tc.msg); got != tc.want {
			t.Errorf("%s: handleable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
