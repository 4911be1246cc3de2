// Package conversation drives one conversational turn at a time: it gates
// the submission, sends the request to the agent backend and folds the
// decoded event stream into the conversation's messages and task plan.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/tickerchat/internal/attachment"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
	"github.com/user/tickerchat/internal/stream"
	"github.com/user/tickerchat/internal/types"
	"github.com/user/tickerchat/pkg/agent"
)

const (
	DefaultHistoryPairs   = 3
	DefaultRequestTimeout = 120 * time.Second
	DefaultTaskClearDelay = 1500 * time.Millisecond

	// Apology is the assistant message that ends a failed turn.
	Apology = "Sorry, I ran into a problem answering that. Please try again."
)

var (
	ErrEmptySubmission = errors.New("submission has no text and no attachment")
	ErrTurnInProgress  = errors.New("a turn is already in progress")
)

// Rejection names why a submission was stopped before reaching the network.
type Rejection string

const (
	RejectAuthRequired    Rejection = "auth_required"
	RejectUpgradeRequired Rejection = "upgrade_required"
)

// Submission is one user input. The attachment is consumed by the turn.
type Submission struct {
	Text       string
	Attachment *types.Attachment
}

// Outcome describes a finished turn.
type Outcome struct {
	TurnID     types.TurnID      `json:"turn_id,omitempty"`
	Rejected   Rejection         `json:"rejected,omitempty"`
	Success    bool              `json:"success"`
	Disposed   bool              `json:"disposed,omitempty"`
	Model      models.Model      `json:"model"`
	Query      string            `json:"-"`
	Elapsed    time.Duration     `json:"elapsed"`
	Attachment attachment.Result `json:"-"`
	Err        error             `json:"-"`
	Snapshot   Snapshot          `json:"snapshot"`
}

// Deps are the collaborators shared by every conversation.
type Deps struct {
	Provider     agent.Provider
	Gate         *quota.Gate
	Preprocessor *attachment.Preprocessor
	Telemetry    types.Telemetry
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRequestTimeout bounds a whole turn from request to end of stream.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.requestTimeout = d }
}

// WithTaskClearDelay sets how long the task plan stays visible after a turn.
func WithTaskClearDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.clearDelay = d }
}

// WithHistoryPairs sets how many prior message pairs are sent as context.
func WithHistoryPairs(n int) Option {
	return func(o *Orchestrator) { o.historyPairs = n }
}

// WithClock injects the time source used for response times.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDecoderOptions passes options to the stream decoder of every turn.
func WithDecoderOptions(opts ...stream.Option) Option {
	return func(o *Orchestrator) { o.decoderOpts = opts }
}

// Orchestrator runs turns against a single Conversation. Turns are not
// re-entrant.
type Orchestrator struct {
	conv     *Conversation
	selector *models.Selector
	deps     Deps
	guard    *semaphore.Weighted

	requestTimeout time.Duration
	clearDelay     time.Duration
	historyPairs   int
	now            func() time.Time
	decoderOpts    []stream.Option
}

// New creates an Orchestrator for conv using selector for the active model.
func New(conv *Conversation, selector *models.Selector, deps Deps, opts ...Option) *Orchestrator {
	if deps.Telemetry == nil {
		deps.Telemetry = types.NopTelemetry{}
	}
	if deps.Preprocessor == nil {
		deps.Preprocessor = attachment.New(nil, nil)
	}
	o := &Orchestrator{
		conv:           conv,
		selector:       selector,
		deps:           deps,
		guard:          semaphore.NewWeighted(1),
		requestTimeout: DefaultRequestTimeout,
		clearDelay:     DefaultTaskClearDelay,
		historyPairs:   DefaultHistoryPairs,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Conversation returns the conversation driven by o.
func (o *Orchestrator) Conversation() *Conversation {
	return o.conv
}

// Model returns the currently selected model.
func (o *Orchestrator) Model() models.Model {
	return o.selector.Current()
}

// SelectModel switches the model for subsequent turns.
func (o *Orchestrator) SelectModel(ctx context.Context, user types.User, key string) (models.Model, error) {
	return o.selector.Select(ctx, user, key)
}

// Busy reports whether a turn is in flight.
func (o *Orchestrator) Busy() bool {
	if !o.guard.TryAcquire(1) {
		return true
	}
	o.guard.Release(1)
	return false
}

// Submit runs one turn. ctx is the disposal signal: once it is done the turn
// stops writing to the conversation. Precondition failures are reported as
// a rejected Outcome; transport and upstream failures as an unsuccessful
// one. A returned error means the submission was not accepted at all.
func (o *Orchestrator) Submit(ctx context.Context, user types.User, sub Submission) (*Outcome, error) {
	if strings.TrimSpace(sub.Text) == "" && sub.Attachment == nil {
		return nil, ErrEmptySubmission
	}
	if !o.guard.TryAcquire(1) {
		return nil, ErrTurnInProgress
	}
	defer o.guard.Release(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.conv.setPhase(PhaseValidating)
	if rej := o.validate(ctx, user); rej != "" {
		o.conv.setPhase(PhaseRejected)
		return &Outcome{Rejected: rej, Model: o.selector.Current(), Snapshot: o.conv.Snapshot()}, nil
	}

	return o.run(ctx, user, sub), nil
}

func (o *Orchestrator) validate(ctx context.Context, user types.User) Rejection {
	if !user.Authenticated {
		o.deps.Telemetry.AuthRequired(ctx, user.ID)
		return RejectAuthRequired
	}
	if o.deps.Gate == nil {
		return ""
	}
	ok, err := o.deps.Gate.CanSubmit(ctx, user.ID, user.Subscriber)
	if err != nil {
		slog.Warn("quota check failed, allowing submission", "user_id", user.ID, "error", err)
		return ""
	}
	if !ok {
		o.deps.Telemetry.UpgradeRequired(ctx, user.ID)
		return RejectUpgradeRequired
	}
	return ""
}

// turn carries the per-turn state shared by the streaming helpers.
type turn struct {
	ctx        context.Context
	acc        *Accumulator
	apologized bool
}

// live reports whether the turn may still write to the conversation.
func (t *turn) live() bool {
	return t.ctx.Err() == nil
}

func (o *Orchestrator) run(ctx context.Context, user types.User, sub Submission) *Outcome {
	model := o.selector.Current()
	out := &Outcome{TurnID: types.NewTurnID(), Model: model}
	t := &turn{ctx: ctx, acc: newAccumulator(o.conv)}

	history := o.conv.history(o.historyPairs * 2)
	gen, _ := o.conv.beginTurn(types.Message{
		ID:      types.NewMessageID(),
		Role:    types.RoleUser,
		Content: displayText(sub),
	})

	if !user.Subscriber && o.deps.Gate != nil {
		if _, err := o.deps.Gate.RecordSubmission(ctx, user.ID); err != nil {
			slog.Warn("record submission failed", "user_id", user.ID, "error", err)
		}
	}

	start := o.now()
	o.deps.Telemetry.QueryStarted(ctx, types.QueryStart{
		Query:     sub.Text,
		Model:     model.Key,
		ModelTier: model.Tier,
	})

	reqCtx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	query, res := o.deps.Preprocessor.Fold(reqCtx, sub.Text, sub.Attachment)
	out.Query = query
	out.Attachment = res

	out.Err = o.stream(reqCtx, t, &agent.Request{
		Query:               query,
		ConversationHistory: toHistory(history),
		Model:               model.Key,
		Stream:              true,
	})
	if out.Err != nil {
		slog.Warn("turn failed", "turn_id", out.TurnID, "model", model.Key, "error", out.Err)
		o.apologize(t)
	} else if !t.acc.Produced() {
		slog.Warn("turn ended without an answer", "turn_id", out.TurnID, "model", model.Key)
		o.apologize(t)
	}

	out.Elapsed = o.now().Sub(start)
	out.Success = out.Err == nil && t.acc.Produced()
	out.Disposed = !t.live()

	o.deps.Telemetry.QueryCompleted(context.WithoutCancel(ctx), types.QueryComplete{
		TurnID:         out.TurnID,
		UserID:         user.ID,
		Query:          sub.Text,
		Model:          model.Key,
		ModelTier:      model.Tier,
		ResponseTimeMS: out.Elapsed.Milliseconds(),
		Success:        out.Success,
	})

	if t.live() {
		o.conv.setPhase(PhaseSettled)
		o.conv.scheduleClear(gen, o.clearDelay)
	}
	out.Snapshot = o.conv.Snapshot()
	return out
}

// stream sends req and routes the decoded events. The returned error is a
// transport failure: request error, non-OK status, read error or timeout.
func (o *Orchestrator) stream(ctx context.Context, t *turn, req *agent.Request) error {
	body, err := o.deps.Provider.Stream(ctx, req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer body.Close()

	if !t.live() {
		return nil
	}
	o.conv.setPhase(PhaseStreaming)

	dec := stream.NewDecoder(body, o.decoderOpts...)
	for ev, err := range dec.All() {
		if err != nil {
			// The decoder already names the failing step.
			return err
		}
		if !t.live() {
			return nil
		}
		o.route(t, ev)
	}
	if n := dec.Dropped(); n > 0 {
		slog.Debug("dropped stream frames", "count", n)
	}
	return nil
}

func (o *Orchestrator) route(t *turn, ev stream.Event) {
	switch ev.Type {
	case stream.TypeAnswerChunk:
		text, err := ev.AnswerChunk()
		if err != nil {
			slog.Debug("ignoring answer chunk", "error", err)
			return
		}
		t.acc.Append(text)
	case stream.TypeError:
		slog.Warn("agent reported an error", "data", string(ev.Data))
		o.apologize(t)
		t.acc.Close()
	default:
		o.conv.applyEvent(ev)
	}
}

// apologize appends the apology once per turn.
func (o *Orchestrator) apologize(t *turn) {
	if t.apologized || !t.live() {
		return
	}
	t.apologized = true
	o.conv.appendMessage(types.Message{
		ID:      types.NewMessageID(),
		Role:    types.RoleAssistant,
		Content: Apology,
	})
}

// displayText is the user-visible message for a submission.
func displayText(sub Submission) string {
	text := strings.TrimSpace(sub.Text)
	if sub.Attachment == nil {
		return text
	}
	if text == "" {
		return "[Attachment: " + sub.Attachment.Name + "]"
	}
	return text + "\n[Attachment: " + sub.Attachment.Name + "]"
}

func toHistory(msgs []types.Message) []agent.HistoryMessage {
	out := make([]agent.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
