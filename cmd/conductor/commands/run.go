package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/audit"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/gateway"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/conductorhq/conductor/internal/telegram"
	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Conductor server",
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	store := approval.NewFileStore(workspacePath)
	auditLog := audit.NewWriter(workspacePath)
	sessions := session.NewManager(workspacePath, nil)

	var notifier approval.Notifier
	var tg *telegram.Channel
	if cfg.Channels.Telegram.Enabled {
		tg = telegram.New(&cfg.Channels.Telegram, nil)
		notifier = tg
	}

	coordinator := approval.NewCoordinator(store, notifier, sessions, auditLog, approval.Options{
		DefaultTimeout: cfg.Approvals.DefaultTimeout(),
	})
	if tg != nil {
		tg.SetCoordinator(coordinator)
	}

	sweep := approval.NewSweep(coordinator, store, approval.SweepConfig{
		Interval:      cfg.Approvals.CheckInterval(),
		MaxConcurrent: cfg.Approvals.MaxConcurrentExpires,
	})
	sweep.Start()

	errCh := make(chan error, 2)

	if tg != nil {
		go func() {
			if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram channel failed: %w", err)
			}
		}()
	}

	gatewayServer := gateway.New(cfg.Gateway, coordinator, sessions)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("Conductor server running. Gateway: http://%s\nPress Ctrl+C to stop.\n", gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	sweep.Stop()
	if tg != nil {
		_ = tg.Stop(shutdownCtx)
	}
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	return runErr
}
