package conversation

import (
	"slices"
	"sync"
	"time"

	"github.com/user/tickerchat/internal/plan"
	"github.com/user/tickerchat/internal/stream"
	"github.com/user/tickerchat/internal/types"
)

// Phase is the orchestrator state of a conversation.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseRejected   Phase = "rejected"
	PhaseSubmitting Phase = "submitting"
	PhaseStreaming  Phase = "streaming"
	PhaseSettled    Phase = "settled"
)

// Snapshot is a copy of the observable conversation state.
type Snapshot struct {
	Messages []types.Message `json:"messages"`
	Tasks    []types.Task    `json:"tasks"`
	Phase    Phase           `json:"phase"`
}

// Conversation owns the ordered messages of one session and, during a turn,
// its task plan. All methods are safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	messages []types.Message
	tasks    []types.Task
	phase    Phase
	turn     uint64
	closed   bool
	clear    *time.Timer
	onChange func(Snapshot)
}

// NewConversation returns an idle, empty conversation.
func NewConversation() *Conversation {
	return &Conversation{phase: PhaseIdle}
}

// OnChange registers fn to receive a snapshot after every mutation. fn runs
// on the mutating goroutine and must not call back into the conversation's
// mutators.
func (c *Conversation) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns copies of the current messages, tasks and phase.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: slices.Clone(c.messages),
		Tasks:    slices.Clone(c.tasks),
		Phase:    c.phase,
	}
}

// Phase returns the current phase.
func (c *Conversation) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a copy of the message history.
func (c *Conversation) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Tasks returns a copy of the current task plan.
func (c *Conversation) Tasks() []types.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

// Close stops any pending task clear. A closed conversation ignores further
// mutations.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.clear != nil {
		c.clear.Stop()
		c.clear = nil
	}
}

// mutate runs fn under the lock and notifies the observer. It reports false
// without running fn once the conversation is closed.
func (c *Conversation) mutate(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	fn()
	notify := c.onChange
	var snap Snapshot
	if notify != nil {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	return true
}

func (c *Conversation) setPhase(p Phase) bool {
	return c.mutate(func() { c.phase = p })
}

// history returns the trailing n messages.
func (c *Conversation) history(n int) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := max(len(c.messages)-n, 0)
	return slices.Clone(c.messages[start:])
}

// beginTurn appends the user's message, drops the previous plan, cancels a
// pending clear and returns the new turn generation.
func (c *Conversation) beginTurn(msg types.Message) (uint64, bool) {
	var gen uint64
	ok := c.mutate(func() {
		c.turn++
		gen = c.turn
		if c.clear != nil {
			c.clear.Stop()
			c.clear = nil
		}
		c.messages = append(c.messages, msg)
		c.tasks = nil
		c.phase = PhaseSubmitting
	})
	return gen, ok
}

func (c *Conversation) appendMessage(msg types.Message) bool {
	return c.mutate(func() { c.messages = append(c.messages, msg) })
}

func (c *Conversation) setContent(id types.MessageID, content string) bool {
	return c.mutate(func() {
		for i := range c.messages {
			if c.messages[i].ID == id {
				c.messages[i].Content = content
				return
			}
		}
	})
}

func (c *Conversation) applyEvent(ev stream.Event) bool {
	return c.mutate(func() { c.tasks = plan.Apply(c.tasks, ev) })
}

// scheduleClear drops the task plan after delay unless a newer turn has
// started by then.
func (c *Conversation) scheduleClear(gen uint64, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.turn != gen {
		return
	}
	if c.clear != nil {
		c.clear.Stop()
	}
	c.clear = time.AfterFunc(delay, func() {
		c.mutate(func() {
			if c.turn == gen {
				c.tasks = nil
			}
		})
	})
}
