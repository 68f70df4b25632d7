package commands

import (
	"fmt"
	"os"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Conductor configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	fmt.Println("=== Conductor Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'conductor init')")
	}

	fmt.Printf("\nWorkspace: %s\n", workspacePath)
	if _, err := os.Stat(workspacePath); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}

	fmt.Println("\nApprovals:")
	fmt.Printf("  Default timeout: %s\n", cfg.Approvals.DefaultTimeout())
	fmt.Printf("  Sweep interval:  %s\n", cfg.Approvals.CheckInterval())
	fmt.Printf("  Max concurrent:  %d\n", cfg.Approvals.MaxConcurrentExpires)

	store := approval.NewFileStore(workspacePath)
	if pending, err := store.List(approval.Query{Status: approval.StatusPending}); err == nil {
		fmt.Printf("  Pending:         %d\n", len(pending))
	} else {
		fmt.Println("  Pending:         unavailable")
	}

	fmt.Println("\nSessions:")
	sessions := session.NewManager(workspacePath, nil).List()
	waiting := 0
	for _, s := range sessions {
		if s.Status == session.StatusWaitingApproval {
			waiting++
		}
	}
	fmt.Printf("  Known: %d total, %d waiting on approval\n", len(sessions), waiting)

	fmt.Println("\nChannels:")
	telegramLine := "disabled"
	if cfg.Channels.Telegram.Enabled {
		telegramLine = "enabled"
		if cfg.Channels.Telegram.Token == "" {
			telegramLine += " (missing token)"
		} else {
			telegramLine += " (ready)"
		}
	}
	fmt.Printf("  Telegram: %s\n", telegramLine)

	fmt.Println("\nGateway:")
	fmt.Printf("  Address: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth:    token configured")
	} else {
		fmt.Println("  Auth:    no token (open)")
	}

	return nil
}
