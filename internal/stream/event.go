package stream

import (
	"encoding/json"
	"fmt"

	"github.com/user/tickerchat/internal/types"
)

// Event types emitted by the agent backend.
const (
	TypePlan         = "plan"
	TypeTaskStart    = "task-start"
	TypeTaskComplete = "task-complete"
	TypeAnswerChunk  = "answer-chunk"
	TypeError        = "error"
)

var knownTypes = map[string]bool{
	TypePlan:         true,
	TypeTaskStart:    true,
	TypeTaskComplete: true,
	TypeAnswerChunk:  true,
	TypeError:        true,
}

// Known reports whether typ is one of the recognized event types.
func Known(typ string) bool {
	return knownTypes[typ]
}

// Event is a single decoded frame: a type discriminator and its raw payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type taskRef struct {
	ID types.TaskID `json:"id"`
}

// Plan decodes the task list carried by a plan event.
func (e Event) Plan() ([]types.Task, error) {
	var tasks []types.Task
	if err := json.Unmarshal(e.Data, &tasks); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return tasks, nil
}

// TaskStartID returns the id referenced by a task-start event.
func (e Event) TaskStartID() (types.TaskID, error) {
	var ref taskRef
	if err := json.Unmarshal(e.Data, &ref); err != nil {
		return "", fmt.Errorf("decode task-start: %w", err)
	}
	return ref.ID, nil
}

// TaskCompleteID returns the id referenced by a task-complete event,
// which nests it as {"task": {"id": ...}}.
func (e Event) TaskCompleteID() (types.TaskID, error) {
	var payload struct {
		Task taskRef `json:"task"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return "", fmt.Errorf("decode task-complete: %w", err)
	}
	return payload.Task.ID, nil
}

// AnswerChunk returns the text fragment of an answer-chunk event.
func (e Event) AnswerChunk() (string, error) {
	var text string
	if err := json.Unmarshal(e.Data, &text); err != nil {
		return "", fmt.Errorf("decode answer-chunk: %w", err)
	}
	return text, nil
}
