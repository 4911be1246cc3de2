// Package gateway keeps one conversation per caller key and bounds the
// number of turns running at once across all callers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/types"
)

var ErrStopped = errors.New("gateway stopped")

// Gateway routes submissions to per-key orchestrators. Each key gets its own
// Conversation and model selection; the collaborators in Deps are shared.
type Gateway struct {
	deps         conversation.Deps
	registry     *models.Registry
	defaultModel string
	opts         []conversation.Option
	slots        *semaphore.Weighted
	active       atomic.Int64

	mu    sync.Mutex
	convs map[types.ConversationKey]*conversation.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway allowing up to maxConcurrent turns at once.
func New(deps conversation.Deps, registry *models.Registry, defaultModel string, maxConcurrent int64, opts ...conversation.Option) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		deps:         deps,
		registry:     registry,
		defaultModel: defaultModel,
		opts:         opts,
		slots:        semaphore.NewWeighted(maxConcurrent),
		convs:        make(map[types.ConversationKey]*conversation.Orchestrator),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start ties the gateway's lifetime to ctx.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel()
	g.ctx, g.cancel = context.WithCancel(ctx)
}

// Stop disposes every in-flight turn, waits for them to return and closes
// all conversations.
func (g *Gateway) Stop() {
	g.mu.Lock()
	g.cancel()
	g.mu.Unlock()
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, orch := range g.convs {
		orch.Conversation().Close()
		delete(g.convs, key)
	}
}

// Orchestrator returns the orchestrator for key, creating it on first use.
func (g *Gateway) Orchestrator(key types.ConversationKey) (*conversation.Orchestrator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if orch, ok := g.convs[key]; ok {
		return orch, nil
	}
	if g.ctx.Err() != nil {
		return nil, ErrStopped
	}
	selector, err := models.NewSelector(g.registry, g.defaultModel, g.deps.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("create selector: %w", err)
	}
	orch := conversation.New(conversation.NewConversation(), selector, g.deps, g.opts...)
	g.convs[key] = orch
	slog.Debug("conversation created", "key", key)
	return orch, nil
}

// Submit runs a turn on key's conversation. It waits for a free slot; a
// submission to a conversation that is already busy fails immediately with
// conversation.ErrTurnInProgress.
func (g *Gateway) Submit(ctx context.Context, key types.ConversationKey, user types.User, sub conversation.Submission) (*conversation.Outcome, error) {
	orch, err := g.Orchestrator(key)
	if err != nil {
		return nil, err
	}
	if orch.Busy() {
		return nil, conversation.ErrTurnInProgress
	}

	g.mu.Lock()
	parent := g.ctx
	if parent.Err() != nil {
		g.mu.Unlock()
		return nil, ErrStopped
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(parent, cancel)
	defer stop()

	if err := g.slots.Acquire(ctx, 1); err != nil {
		if parent.Err() != nil {
			return nil, ErrStopped
		}
		return nil, fmt.Errorf("wait for slot: %w", err)
	}
	defer g.slots.Release(1)

	g.active.Add(1)
	defer g.active.Add(-1)
	return orch.Submit(ctx, user, sub)
}

// Snapshot returns the state of key's conversation.
func (g *Gateway) Snapshot(key types.ConversationKey) (conversation.Snapshot, bool) {
	g.mu.Lock()
	orch, ok := g.convs[key]
	g.mu.Unlock()
	if !ok {
		return conversation.Snapshot{}, false
	}
	return orch.Conversation().Snapshot(), true
}

// Reset discards key's conversation. The next submission starts a new one.
func (g *Gateway) Reset(key types.ConversationKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	orch, ok := g.convs[key]
	if !ok {
		return false
	}
	orch.Conversation().Close()
	delete(g.convs, key)
	return true
}

// Keys lists the conversation keys in sorted order.
func (g *Gateway) Keys() []types.ConversationKey {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]types.ConversationKey, 0, len(g.convs))
	for k := range g.convs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Active returns the number of turns currently running.
func (g *Gateway) Active() int64 {
	return g.active.Load()
}

// WaitIdle blocks until no turns are running, or the timeout expires.
// Returns true if idle, false if timed out.
func (g *Gateway) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if g.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
