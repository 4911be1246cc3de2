package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
	"github.com/user/tickerchat/internal/state"
	"github.com/user/tickerchat/internal/types"
	"github.com/user/tickerchat/pkg/agent"
)

type mockProvider struct {
	StreamFunc func(ctx context.Context, req *agent.Request) (io.ReadCloser, error)
}

func (m *mockProvider) Stream(ctx context.Context, req *agent.Request) (io.ReadCloser, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return io.NopCloser(strings.NewReader("data: {\"type\":\"answer-chunk\",\"data\":\"echo: " + req.Query + "\"}\ndata: [DONE]\n")), nil
}

var user = types.User{ID: "u1", Authenticated: true, Subscriber: true}

func newGateway(t *testing.T, provider agent.Provider, maxConcurrent int64) *Gateway {
	t.Helper()
	window, err := quota.NewWindow(quota.DefaultResetSchedule)
	if err != nil {
		t.Fatal(err)
	}
	gw := New(conversation.Deps{
		Provider: provider,
		Gate:     quota.NewGate(state.NewMemoryStore(), window),
	}, models.Default(), models.DefaultModel, maxConcurrent)
	gw.Start(context.Background())
	t.Cleanup(gw.Stop)
	return gw
}

func TestGatewayKeepsConversationPerKey(t *testing.T) {
	gw := newGateway(t, &mockProvider{}, 2)
	ctx := context.Background()

	a := types.NewConversationKey("test", "a")
	b := types.NewConversationKey("test", "b")
	for _, key := range []types.ConversationKey{a, a, b} {
		out, err := gw.Submit(ctx, key, user, conversation.Submission{Text: "hi"})
		if err != nil {
			t.Fatal(err)
		}
		if !out.Success {
			t.Fatalf("turn failed: %v", out.Err)
		}
	}

	snapA, ok := gw.Snapshot(a)
	if !ok || len(snapA.Messages) != 4 {
		t.Errorf("expected 4 messages for a, got %+v", snapA.Messages)
	}
	snapB, ok := gw.Snapshot(b)
	if !ok || len(snapB.Messages) != 2 {
		t.Errorf("expected 2 messages for b, got %+v", snapB.Messages)
	}
	if keys := gw.Keys(); len(keys) != 2 || keys[0] != a {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestGatewayModelSelectionIsPerKey(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	provider := &mockProvider{StreamFunc: func(_ context.Context, req *agent.Request) (io.ReadCloser, error) {
		mu.Lock()
		seen[req.Query] = req.Model
		mu.Unlock()
		return io.NopCloser(strings.NewReader("data: [DONE]\n")), nil
	}}
	gw := newGateway(t, provider, 2)
	ctx := context.Background()

	orch, err := gw.Orchestrator("k1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := orch.SelectModel(ctx, user, "claude-opus"); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.Submit(ctx, "k1", user, conversation.Submission{Text: "one"}); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.Submit(ctx, "k2", user, conversation.Submission{Text: "two"}); err != nil {
		t.Fatal(err)
	}

	if seen["one"] != "claude-opus" || seen["two"] != models.DefaultModel {
		t.Errorf("unexpected models %v", seen)
	}
}

func TestGatewayBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	provider := &mockProvider{StreamFunc: func(context.Context, *agent.Request) (io.ReadCloser, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return io.NopCloser(strings.NewReader("data: [DONE]\n")), nil
	}}
	gw := newGateway(t, provider, 1)

	var wg sync.WaitGroup
	for _, key := range []types.ConversationKey{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gw.Submit(context.Background(), key, user, conversation.Submission{Text: "hi"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("expected at most 1 concurrent turn, saw %d", peak.Load())
	}
	if !gw.WaitIdle(time.Second) {
		t.Error("expected gateway to be idle")
	}
}

func TestGatewayRejectsBusyConversation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	provider := &mockProvider{StreamFunc: func(context.Context, *agent.Request) (io.ReadCloser, error) {
		close(started)
		<-release
		return io.NopCloser(strings.NewReader("data: [DONE]\n")), nil
	}}
	gw := newGateway(t, provider, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Submit(context.Background(), "k", user, conversation.Submission{Text: "first"})
	}()
	<-started

	if _, err := gw.Submit(context.Background(), "k", user, conversation.Submission{Text: "second"}); !errors.Is(err, conversation.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress, got %v", err)
	}
	if gw.Active() != 1 {
		t.Errorf("expected 1 active turn, got %d", gw.Active())
	}
	close(release)
	<-done
}

func TestGatewayReset(t *testing.T) {
	gw := newGateway(t, &mockProvider{}, 1)
	if _, err := gw.Submit(context.Background(), "k", user, conversation.Submission{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if !gw.Reset("k") {
		t.Fatal("expected reset to find the conversation")
	}
	if _, ok := gw.Snapshot("k"); ok {
		t.Error("expected conversation to be gone")
	}
	if gw.Reset("k") {
		t.Error("second reset should report nothing to drop")
	}
}

func TestGatewayStopDisposesTurns(t *testing.T) {
	started := make(chan struct{})
	provider := &mockProvider{StreamFunc: func(ctx context.Context, _ *agent.Request) (io.ReadCloser, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	window, err := quota.NewWindow(quota.DefaultResetSchedule)
	if err != nil {
		t.Fatal(err)
	}
	gw := New(conversation.Deps{
		Provider: provider,
		Gate:     quota.NewGate(state.NewMemoryStore(), window),
	}, models.Default(), models.DefaultModel, 1)
	gw.Start(context.Background())

	result := make(chan *conversation.Outcome, 1)
	go func() {
		out, _ := gw.Submit(context.Background(), "k", user, conversation.Submission{Text: "hi"})
		result <- out
	}()
	<-started
	gw.Stop()

	out := <-result
	if out == nil || !out.Disposed {
		t.Errorf("expected disposed outcome, got %+v", out)
	}
	if _, err := gw.Submit(context.Background(), "k", user, conversation.Submission{Text: "again"}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
}
