package conversation

import (
	"strings"

	"github.com/user/tickerchat/internal/types"
)

// Accumulator builds the assistant message of one turn from streamed answer
// fragments. The message is created on the first fragment.
type Accumulator struct {
	conv      *Conversation
	id        types.MessageID
	text      strings.Builder
	fragments int
	closed    bool
}

func newAccumulator(conv *Conversation) *Accumulator {
	return &Accumulator{conv: conv}
}

// Append adds fragment to the message. It reports false when the
// accumulator is closed or the conversation rejected the write. Empty
// fragments are ignored.
func (a *Accumulator) Append(fragment string) bool {
	if a.closed {
		return false
	}
	if fragment == "" {
		return true
	}

	a.text.WriteString(fragment)
	var ok bool
	if a.id == "" {
		a.id = types.NewMessageID()
		ok = a.conv.appendMessage(types.Message{ID: a.id, Role: types.RoleAssistant, Content: a.text.String()})
	} else {
		ok = a.conv.setContent(a.id, a.text.String())
	}
	if ok {
		a.fragments++
	}
	return ok
}

// Close stops further fragments from being appended.
func (a *Accumulator) Close() {
	a.closed = true
}

// Closed reports whether Close has been called.
func (a *Accumulator) Closed() bool {
	return a.closed
}

// Produced reports whether at least one fragment was appended.
func (a *Accumulator) Produced() bool {
	return a.fragments > 0
}

// Text returns the accumulated answer.
func (a *Accumulator) Text() string {
	return a.text.String()
}
