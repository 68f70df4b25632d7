package commands

import (
	"github.com/conductorhq/conductor/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor - Agent orchestration with human approval",
		Long:  `Conductor dispatches work to coding-agent sessions and escalates permission requests to a human operator with timeout-based auto-cancellation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewApprovalCmd(),
		NewSessionCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
