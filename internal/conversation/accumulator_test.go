package conversation

import (
	"testing"

	"github.com/user/tickerchat/internal/types"
)

func TestAccumulatorCreatesMessageOnFirstFragment(t *testing.T) {
	conv := NewConversation()
	acc := newAccumulator(conv)

	if acc.Produced() {
		t.Error("fresh accumulator should not report output")
	}
	acc.Append("")
	if len(conv.Messages()) != 0 {
		t.Fatal("empty fragment must not create a message")
	}

	for _, f := range []string{"Hel", "lo, ", "world"} {
		if !acc.Append(f) {
			t.Fatalf("append %q refused", f)
		}
	}
	msgs := conv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleAssistant || msgs[0].Content != "Hello, world" {
		t.Errorf("unexpected message %+v", msgs[0])
	}
	if acc.Text() != "Hello, world" {
		t.Errorf("unexpected text %q", acc.Text())
	}
}

func TestAccumulatorClose(t *testing.T) {
	conv := NewConversation()
	acc := newAccumulator(conv)
	acc.Append("a")
	acc.Close()

	if acc.Append("b") {
		t.Error("closed accumulator must refuse fragments")
	}
	if got := conv.Messages()[0].Content; got != "a" {
		t.Errorf("expected 'a', got %q", got)
	}
}

func TestAccumulatorClosedConversation(t *testing.T) {
	conv := NewConversation()
	conv.Close()
	acc := newAccumulator(conv)
	if acc.Append("x") {
		t.Error("closed conversation must refuse writes")
	}
	if acc.Produced() {
		t.Error("refused fragment must not count as output")
	}
}
