package commands

import (
	"fmt"
	"time"

	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/spf13/cobra"
)

func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect agent sessions",
	}

	cmd.AddCommand(newSessionListCmd())

	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known sessions",
		RunE:  runSessionList,
	}
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	sessions := session.NewManager(workspacePath, nil).List()
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-16s  agent=%s updated=%s\n",
			s.ID, s.Status, s.AgentID, s.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
