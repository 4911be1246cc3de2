package types

import (
	"context"
)

// KVStore is the client-local key-value storage backing the quota counters.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Updater is implemented by stores that can run a read-modify-write on a
// single key without interleaving with other writers.
type Updater interface {
	Update(ctx context.Context, key string, fn func(old string, ok bool) (string, error)) error
}

// Uploader sends an attachment to the parsing collaborator and returns the
// extracted text.
type Uploader interface {
	Upload(ctx context.Context, att *Attachment) (*UploadResult, error)
}

// Telemetry receives fire-and-forget lifecycle signals.
type Telemetry interface {
	QueryStarted(ctx context.Context, ev QueryStart)
	QueryCompleted(ctx context.Context, ev QueryComplete)
	AuthRequired(ctx context.Context, user UserID)
	UpgradeRequired(ctx context.Context, user UserID)
}

// NopTelemetry discards every signal.
type NopTelemetry struct{}

func (NopTelemetry) QueryStarted(context.Context, QueryStart)      {}
func (NopTelemetry) QueryCompleted(context.Context, QueryComplete) {}
func (NopTelemetry) AuthRequired(context.Context, UserID)          {}
func (NopTelemetry) UpgradeRequired(context.Context, UserID)       {}
