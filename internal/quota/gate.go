// Package quota implements the free-tier daily submission limit.
//
// The gate is a UX affordance: it stops a non-subscriber from submitting
// before any network call, but the backend remains the authority on
// entitlement.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/tickerchat/internal/types"
)

// DefaultLimit is the number of free-tier queries allowed per period.
const DefaultLimit = 3

// counter is the persisted value for one user.
type counter struct {
	Period time.Time `json:"period"`
	Count  int       `json:"count"`
}

// Gate decides whether a user may submit another query.
type Gate struct {
	store  types.KVStore
	window *Window
	limit  int
	now    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLimit overrides DefaultLimit. Non-positive values are ignored.
func WithLimit(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.limit = n
		}
	}
}

// NewGate creates a Gate persisting counters in store and resetting them at
// each boundary of window.
func NewGate(store types.KVStore, window *Window, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		window: window,
		limit:  DefaultLimit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the storage key for a user's counter.
func Key(user types.UserID) string {
	return "quota:" + string(user)
}

// Limit returns the per-period allowance.
func (g *Gate) Limit() int {
	return g.limit
}

// Count returns the number of submissions recorded in the current period.
func (g *Gate) Count(ctx context.Context, user types.UserID) (int, error) {
	raw, ok, err := g.store.Get(ctx, Key(user))
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return g.current(raw).Count, nil
}

// CanSubmit reports whether the user may submit now. Subscribers always may.
func (g *Gate) CanSubmit(ctx context.Context, user types.UserID, isSubscriber bool) (bool, error) {
	if isSubscriber {
		return true, nil
	}
	n, err := g.Count(ctx, user)
	if err != nil {
		return false, err
	}
	return n < g.limit, nil
}

// Remaining returns how many submissions are left this period and when the
// counter next resets.
func (g *Gate) Remaining(ctx context.Context, user types.UserID) (int, time.Time, error) {
	n, err := g.Count(ctx, user)
	if err != nil {
		return 0, time.Time{}, err
	}
	left := g.limit - n
	if left < 0 {
		left = 0
	}
	return left, g.window.Next(g.now()), nil
}

// RecordSubmission increments the user's counter and returns the new count.
// It does not check the limit.
func (g *Gate) RecordSubmission(ctx context.Context, user types.UserID) (int, error) {
	var count int
	bump := func(old string, ok bool) (string, error) {
		c := counter{Period: g.window.Start(g.now())}
		if ok {
			c = g.current(old)
		}
		c.Count++
		count = c.Count
		data, err := json.Marshal(c)
		if err != nil {
			return "", fmt.Errorf("marshal quota: %w", err)
		}
		return string(data), nil
	}

	if u, ok := g.store.(types.Updater); ok {
		if err := u.Update(ctx, Key(user), bump); err != nil {
			return 0, fmt.Errorf("update quota: %w", err)
		}
		return count, nil
	}

	old, ok, err := g.store.Get(ctx, Key(user))
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	next, err := bump(old, ok)
	if err != nil {
		return 0, err
	}
	if err := g.store.Set(ctx, Key(user), next); err != nil {
		return 0, fmt.Errorf("write quota: %w", err)
	}
	return count, nil
}

// Reset clears the user's counter for the current period.
func (g *Gate) Reset(ctx context.Context, user types.UserID) error {
	data, err := json.Marshal(counter{Period: g.window.Start(g.now())})
	if err != nil {
		return fmt.Errorf("marshal quota: %w", err)
	}
	if err := g.store.Set(ctx, Key(user), string(data)); err != nil {
		return fmt.Errorf("write quota: %w", err)
	}
	return nil
}

// current decodes a stored counter, treating one from an earlier period or
// an unreadable value as zero for the current period.
func (g *Gate) current(raw string) counter {
	period := g.window.Start(g.now())
	var c counter
	if err := json.Unmarshal([]byte(raw), &c); err != nil || !c.Period.Equal(period) {
		return counter{Period: period}
	}
	return c
}
