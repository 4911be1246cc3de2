// Package plan reduces task plan events into the current task list.
package plan

import (
	"log/slog"

	"github.com/user/tickerchat/internal/stream"
	"github.com/user/tickerchat/internal/types"
)

// Apply returns the task list after ev. It never modifies tasks in place.
//
// A plan event replaces the whole list. task-start and task-complete only
// move a task forward; references to ids missing from the current plan and
// repeated completions leave the list unchanged. Events of any other type
// are returned as-is.
func Apply(tasks []types.Task, ev stream.Event) []types.Task {
	switch ev.Type {
	case stream.TypePlan:
		next, err := ev.Plan()
		if err != nil {
			slog.Debug("ignoring undecodable plan", "error", err)
			return tasks
		}
		for i := range next {
			if next[i].Status == "" {
				next[i].Status = types.TaskPending
			}
		}
		return next

	case stream.TypeTaskStart:
		id, err := ev.TaskStartID()
		if err != nil {
			return tasks
		}
		return advance(tasks, id, types.TaskRunning)

	case stream.TypeTaskComplete:
		id, err := ev.TaskCompleteID()
		if err != nil {
			return tasks
		}
		return advance(tasks, id, types.TaskCompleted)
	}
	return tasks
}

func advance(tasks []types.Task, id types.TaskID, status types.TaskStatus) []types.Task {
	for i, task := range tasks {
		if task.ID != id {
			continue
		}
		if !task.Status.Advances(status) {
			return tasks
		}
		next := make([]types.Task, len(tasks))
		copy(next, tasks)
		next[i].Status = status
		return next
	}
	return tasks
}

// Counts tallies tasks per status.
type Counts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
}

// Summary counts the tasks in each status.
func Summary(tasks []types.Task) Counts {
	var c Counts
	for _, task := range tasks {
		switch task.Status {
		case types.TaskRunning:
			c.Running++
		case types.TaskCompleted:
			c.Completed++
		default:
			c.Pending++
		}
	}
	return c
}
