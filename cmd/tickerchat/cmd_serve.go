package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/tickerchat/internal/server"
	"github.com/user/tickerchat/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and, if configured, the Telegram bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	defer setupLogging(cfg).Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pid := pidFileIn(cfg.DataDir)
	if err := pid.write(); err != nil {
		return err
	}
	defer pid.remove()

	slog.Info("tickerchat started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"agent", cfg.Agent.BaseURL+cfg.Agent.ChatPath,
		"model", cfg.Agent.Model,
		"quota_store", cfg.Quota.Store,
		"reset_schedule", cfg.Quota.ResetSchedule,
		"pid_file", pid,
	)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.gateway, a.gate, a.registry, cfg.Telegram.Subscribers)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           server.New(a.gateway, a.gate, a.registry, a.journal),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return errors.New("http server stopped unexpectedly")
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				shutdown(httpServer, a)
				a.close()
				pid.remove()
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					return fmt.Errorf("re-exec: %w", err)
				}
			}
			slog.Info("shutting down", "signal", sig)
			shutdown(httpServer, a)
			return nil
		}
	}
}

// shutdown stops accepting requests and gives running turns a grace period
// before they are disposed.
func shutdown(httpServer *http.Server, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if !a.gateway.WaitIdle(5 * time.Second) {
		slog.Warn("turns still running at shutdown", "active", a.gateway.Active())
	}
}
