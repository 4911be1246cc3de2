package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/user/tickerchat/internal/attachment"
	"github.com/user/tickerchat/internal/config"
	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/gateway"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
	"github.com/user/tickerchat/internal/state"
	"github.com/user/tickerchat/internal/telemetry"
	"github.com/user/tickerchat/internal/types"
	"github.com/user/tickerchat/pkg/agent"
	"github.com/user/tickerchat/pkg/agent/httpagent"
)

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg       *config.Config
	registry  *models.Registry
	gate      *quota.Gate
	journal   *telemetry.Journal
	telemetry types.Telemetry
	gateway   *gateway.Gateway

	closers []func()
}

func journalPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "turns.jsonl")
}

// openGate opens the quota store named in cfg and builds the gate over it.
func openGate(cfg *config.Config) (*quota.Gate, func() error, error) {
	path := filepath.Join(cfg.DataDir, "quota.json")
	if cfg.Quota.Store == "sqlite" {
		path = filepath.Join(cfg.DataDir, "quota.db")
	}
	store, closeStore, err := state.Open(cfg.Quota.Store, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open quota store: %w", err)
	}
	window, err := quota.NewWindow(cfg.Quota.ResetSchedule)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("parse reset schedule: %w", err)
	}
	return quota.NewGate(store, window, quota.WithLimit(cfg.Quota.DailyLimit)), closeStore, nil
}

// newApp wires the full stack. Call close when done.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a := &app{cfg: cfg, registry: models.Default()}

	gate, closeStore, err := openGate(cfg)
	if err != nil {
		return nil, err
	}
	a.gate = gate
	a.closers = append(a.closers, func() {
		if err := closeStore(); err != nil {
			slog.Warn("close quota store failed", "error", err)
		}
	})

	a.journal = telemetry.NewJournal(journalPath(cfg))
	sinks := telemetry.Multi{a.journal}
	if cfg.Telemetry.Enabled {
		providers, err := telemetry.InitProviders(ctx, filepath.Join(cfg.DataDir, "telemetry"), version,
			time.Duration(cfg.Telemetry.IntervalSeconds)*time.Second)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.closers = append(a.closers, providers.Shutdown)
		reporter, err := telemetry.NewReporter(providers.Tracer, providers.Meter)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create reporter: %w", err)
		}
		sinks = append(sinks, reporter)
	}
	a.telemetry = sinks

	provider := httpagent.New(&agent.Config{
		BaseURL:        cfg.Agent.BaseURL,
		ChatPath:       cfg.Agent.ChatPath,
		APIKey:         cfg.Agent.APIKey,
		ConnectTimeout: cfg.ConnectTimeout(),
	})

	var uploader types.Uploader
	if cfg.Agent.UploadURL != "" {
		uploader = attachment.NewHTTPUploader(cfg.Agent.UploadURL, cfg.Agent.APIKey)
	}
	var budget *attachment.Budget
	if cfg.Attachment.MaxTokens > 0 {
		budget = attachment.NewBudget(cfg.Attachment.TokenizerModel, cfg.Attachment.MaxTokens)
	}

	a.gateway = gateway.New(conversation.Deps{
		Provider:     provider,
		Gate:         gate,
		Preprocessor: attachment.New(uploader, budget),
		Telemetry:    a.telemetry,
	}, a.registry, cfg.Agent.Model, int64(cfg.MaxConcurrent),
		conversation.WithRequestTimeout(cfg.RequestTimeout()),
		conversation.WithTaskClearDelay(cfg.TaskClearDelay()),
		conversation.WithHistoryPairs(cfg.Conversation.HistoryPairs),
	)
	a.gateway.Start(ctx)
	a.closers = append(a.closers, a.gateway.Stop)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// localUser is the CLI caller.
func (a *app) localUser(subscriber bool) types.User {
	return types.User{
		ID:            types.UserID(a.cfg.User.ID),
		Authenticated: a.cfg.User.ID != "",
		Subscriber:    subscriber || a.cfg.User.Subscriber,
	}
}
