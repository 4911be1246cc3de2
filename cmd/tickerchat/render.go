package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/types"
)

// renderer prints conversation changes incrementally: task progress to one
// writer and answer text to another, as it streams in.
type renderer struct {
	out      io.Writer
	progress io.Writer

	mu       sync.Mutex
	printed  map[types.MessageID]int
	statuses map[types.TaskID]types.TaskStatus
	skip     int
	wrote    bool
}

func newRenderer(out, progress io.Writer) *renderer {
	return &renderer{
		out:      out,
		progress: progress,
		printed:  make(map[types.MessageID]int),
		statuses: make(map[types.TaskID]types.TaskStatus),
	}
}

// startTurn marks the messages that already exist as printed.
func (r *renderer) startTurn(snap conversation.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skip = len(snap.Messages)
	r.wrote = false
	clear(r.statuses)
}

func (r *renderer) update(snap conversation.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range snap.Tasks {
		if r.statuses[task.ID] == task.Status {
			continue
		}
		r.statuses[task.ID] = task.Status
		fmt.Fprintf(r.progress, "  %s %s\n", statusIcon(task.Status), task.Description)
	}

	for i := r.skip; i < len(snap.Messages); i++ {
		msg := snap.Messages[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		n, seen := r.printed[msg.ID]
		if !seen && r.wrote {
			fmt.Fprintln(r.out)
		}
		if len(msg.Content) > n {
			fmt.Fprint(r.out, msg.Content[n:])
			r.wrote = true
		}
		r.printed[msg.ID] = len(msg.Content)
	}
}

// finish terminates the answer line.
func (r *renderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wrote {
		fmt.Fprintln(r.out)
	}
}

func statusIcon(s types.TaskStatus) string {
	switch s {
	case types.TaskRunning:
		return "[..]"
	case types.TaskCompleted:
		return "[ok]"
	default:
		return "[  ]"
	}
}
