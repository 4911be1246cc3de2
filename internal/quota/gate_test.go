package quota

import (
	"context"
	"testing"
	"time"

	"github.com/user/tickerchat/internal/state"
	"github.com/user/tickerchat/internal/types"
)

// plainStore implements only Get/Set so the gate's fallback path is exercised.
type plainStore struct {
	values map[string]string
}

func (p *plainStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *plainStore) Set(_ context.Context, key, value string) error {
	p.values[key] = value
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestGate(t *testing.T, store types.KVStore, clock *fakeClock) *Gate {
	t.Helper()
	window, err := NewWindow(DefaultResetSchedule)
	if err != nil {
		t.Fatal(err)
	}
	return NewGate(store, window, WithClock(clock.Now))
}

func TestGateRejectsAtLimit(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)}
	gate := newTestGate(t, state.NewMemoryStore(), clock)

	for i := 1; i <= 3; i++ {
		ok, err := gate.CanSubmit(ctx, "u1", false)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("submission %d should be allowed", i)
		}
		n, err := gate.RecordSubmission(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Errorf("expected count %d, got %d", i, n)
		}
	}

	ok, err := gate.CanSubmit(ctx, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("non-subscriber at the limit should be rejected")
	}

	ok, err = gate.CanSubmit(ctx, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("subscriber should always be allowed")
	}
}

func TestGateCountersArePerUser(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)}
	gate := newTestGate(t, state.NewMemoryStore(), clock)

	for i := 0; i < 3; i++ {
		if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}
	ok, err := gate.CanSubmit(ctx, "u2", false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("u2 should not be affected by u1's usage")
	}
}

func TestGateResetsAtBoundary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 23, 59, 0, 0, time.UTC)}
	gate := newTestGate(t, state.NewMemoryStore(), clock)

	for i := 0; i < 3; i++ {
		if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := gate.CanSubmit(ctx, "u1", false); ok {
		t.Fatal("expected rejection before midnight")
	}

	clock.t = time.Date(2026, 10, 18, 0, 0, 1, 0, time.UTC)
	n, err := gate.Count(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected counter reset after midnight UTC, got %d", n)
	}
	n, err = gate.RecordSubmission(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected first submission of the new day to count 1, got %d", n)
	}
}

func TestGateFallbackGetSet(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	store := &plainStore{values: map[string]string{}}
	gate := newTestGate(t, store, clock)

	if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := gate.Count(ctx, "u1"); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	if _, ok := store.values[Key("u1")]; !ok {
		t.Errorf("expected value under %s", Key("u1"))
	}
}

func TestGateRemainingAndReset(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	gate := newTestGate(t, state.NewMemoryStore(), clock)

	if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	left, resetAt, err := gate.Remaining(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if left != 2 {
		t.Errorf("expected 2 remaining, got %d", left)
	}
	if want := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC); !resetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, resetAt)
	}

	if err := gate.Reset(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := gate.Count(ctx, "u1"); n != 0 {
		t.Errorf("expected 0 after reset, got %d", n)
	}
}

func TestGateIgnoresCorruptValue(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	store := state.NewMemoryStore()
	store.Set(ctx, Key("u1"), "garbage")
	gate := newTestGate(t, store, clock)

	if n, err := gate.Count(ctx, "u1"); err != nil || n != 0 {
		t.Errorf("expected 0 for corrupt value, got %d (%v)", n, err)
	}
}

func TestWindowStart(t *testing.T) {
	w, err := NewWindow("CRON_TZ=UTC 0 0 * * *")
	if err != nil {
		t.Fatal(err)
	}
	got := w.Start(time.Date(2026, 10, 17, 13, 30, 0, 0, time.UTC))
	want := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	exact := w.Start(want)
	if !exact.Equal(want) {
		t.Errorf("boundary instant should start its own period, got %v", exact)
	}

	if _, err := NewWindow("not a cron"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := NewWindow("0 0 30 2 *"); err == nil {
		t.Error("expected error for a schedule that never fires")
	}
}

func TestWindowStartSparseSchedules(t *testing.T) {
	now := time.Date(2026, 10, 17, 13, 30, 0, 0, time.UTC)
	cases := []struct {
		spec string
		want time.Time
	}{
		{"CRON_TZ=UTC 0 0 * * 1", time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"CRON_TZ=UTC 0 0 1 * *", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"CRON_TZ=UTC 0 0 1 1 *", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"CRON_TZ=UTC 0 0 29 2 *", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		w, err := NewWindow(tc.spec)
		if err != nil {
			t.Fatal(err)
		}
		got := w.Start(now)
		if !got.Equal(tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.spec, tc.want, got)
		}
		if later := w.Start(now.Add(time.Hour)); !later.Equal(got) {
			t.Errorf("%s: period start moved from %v to %v", tc.spec, got, later)
		}
	}
}

func TestGateMonthlyScheduleCounts(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC)}
	window, err := NewWindow("0 0 1 * *")
	if err != nil {
		t.Fatal(err)
	}
	gate := NewGate(state.NewMemoryStore(), window, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if _, err := gate.RecordSubmission(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
		clock.t = clock.t.Add(time.Minute)
	}
	n, err := gate.Count(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("expected count 5, got %d", n)
	}
	ok, err := gate.CanSubmit(ctx, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected monthly quota to be enforced")
	}

	clock.t = time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC)
	if n, _ := gate.Count(ctx, "u1"); n != 0 {
		t.Errorf("expected reset on the first of the month, got %d", n)
	}
}
