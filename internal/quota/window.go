package quota

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultResetSchedule resets counters at midnight UTC.
const DefaultResetSchedule = "CRON_TZ=UTC 0 0 * * *"

// Search bounds for the boundary preceding an instant. The cron parser
// gives up after five years, so maxLookback always reaches a firing.
const (
	minLookback = 8 * 24 * time.Hour
	maxLookback = 2048 * 24 * time.Hour
)

// Window maps an instant to the start of the quota period containing it.
type Window struct {
	spec     string
	schedule cron.Schedule
}

// NewWindow parses a standard cron expression (optionally prefixed with
// CRON_TZ=) whose firings mark period boundaries. Expressions that never
// fire, such as 30 February, are rejected.
func NewWindow(spec string) (*Window, error) {
	if spec == "" {
		spec = DefaultResetSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", spec, err)
	}
	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("reset schedule %q never fires", spec)
	}
	return &Window{spec: spec, schedule: schedule}, nil
}

// Spec returns the cron expression the window was built from.
func (w *Window) Spec() string {
	return w.spec
}

// Start returns the latest boundary at or before t. The search widens from
// a week up to maxLookback, so monthly or yearly schedules resolve to a
// fixed instant rather than one that moves with t.
func (w *Window) Start(t time.Time) time.Time {
	for back := minLookback; back <= maxLookback; back *= 2 {
		if start, ok := w.latest(t.Add(-back), t); ok {
			return start
		}
	}
	return time.Time{}
}

// latest returns the last boundary in (from, t].
func (w *Window) latest(from, t time.Time) (time.Time, bool) {
	var start time.Time
	found := false
	for next := w.schedule.Next(from); !next.IsZero() && !next.After(t); next = w.schedule.Next(next) {
		start, found = next, true
	}
	return start, found
}

// Next returns the first boundary after t, when the counter resets.
func (w *Window) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}
