// Package telemetry implements the lifecycle signal collaborators: structured
// logs, OpenTelemetry spans and metrics, and a JSONL journal of completed
// turns.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/tickerchat/internal/types"
)

// Reporter records lifecycle signals as OpenTelemetry spans and metrics and
// logs each one.
type Reporter struct {
	tracer    trace.Tracer
	started   metric.Int64Counter
	completed metric.Int64Counter
	duration  metric.Float64Histogram
	gated     metric.Int64Counter
}

// NewReporter creates the instruments on meter.
func NewReporter(tracer trace.Tracer, meter metric.Meter) (*Reporter, error) {
	started, err := meter.Int64Counter("chat.query.started",
		metric.WithDescription("Queries submitted to the agent"))
	if err != nil {
		return nil, fmt.Errorf("create started counter: %w", err)
	}
	completed, err := meter.Int64Counter("chat.query.completed",
		metric.WithDescription("Queries that reached a settled state"))
	if err != nil {
		return nil, fmt.Errorf("create completed counter: %w", err)
	}
	duration, err := meter.Float64Histogram("chat.query.duration",
		metric.WithDescription("Wall-clock time from submit to settle"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	gated, err := meter.Int64Counter("chat.query.gated",
		metric.WithDescription("Submissions stopped before reaching the agent"))
	if err != nil {
		return nil, fmt.Errorf("create gated counter: %w", err)
	}
	return &Reporter{
		tracer:    tracer,
		started:   started,
		completed: completed,
		duration:  duration,
		gated:     gated,
	}, nil
}

func (r *Reporter) QueryStarted(ctx context.Context, ev types.QueryStart) {
	r.started.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", ev.Model),
		attribute.String("model_tier", string(ev.ModelTier)),
	))
	slog.Info("query started", "model", ev.Model, "model_tier", ev.ModelTier, "query_len", len(ev.Query))
}

func (r *Reporter) QueryCompleted(ctx context.Context, ev types.QueryComplete) {
	attrs := []attribute.KeyValue{
		attribute.String("model", ev.Model),
		attribute.String("model_tier", string(ev.ModelTier)),
		attribute.Bool("success", ev.Success),
	}
	r.completed.Add(ctx, 1, metric.WithAttributes(attrs...))
	r.duration.Record(ctx, float64(ev.ResponseTimeMS), metric.WithAttributes(attrs...))

	end := time.Now()
	start := end.Add(-time.Duration(ev.ResponseTimeMS) * time.Millisecond)
	_, span := r.tracer.Start(ctx, "chat.turn",
		trace.WithTimestamp(start),
		trace.WithAttributes(append(attrs, attribute.String("turn_id", string(ev.TurnID)))...),
	)
	if !ev.Success {
		span.SetStatus(codes.Error, "turn produced no answer")
	}
	span.End(trace.WithTimestamp(end))

	slog.Info("query completed",
		"turn_id", ev.TurnID,
		"model", ev.Model,
		"model_tier", ev.ModelTier,
		"response_time_ms", ev.ResponseTimeMS,
		"success", ev.Success,
	)
}

func (r *Reporter) AuthRequired(ctx context.Context, user types.UserID) {
	r.gated.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "auth_required")))
	slog.Info("auth required", "user_id", user)
}

func (r *Reporter) UpgradeRequired(ctx context.Context, user types.UserID) {
	r.gated.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "upgrade_required")))
	slog.Info("upgrade required", "user_id", user)
}

// Multi fans every signal out to each collaborator in order.
type Multi []types.Telemetry

func (m Multi) QueryStarted(ctx context.Context, ev types.QueryStart) {
	for _, t := range m {
		t.QueryStarted(ctx, ev)
	}
}

func (m Multi) QueryCompleted(ctx context.Context, ev types.QueryComplete) {
	for _, t := range m {
		t.QueryCompleted(ctx, ev)
	}
}

func (m Multi) AuthRequired(ctx context.Context, user types.UserID) {
	for _, t := range m {
		t.AuthRequired(ctx, user)
	}
}

func (m Multi) UpgradeRequired(ctx context.Context, user types.UserID) {
	for _, t := range m {
		t.UpgradeRequired(ctx, user)
	}
}
