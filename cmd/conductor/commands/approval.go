package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/audit"
	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/spf13/cobra"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Manage approval requests",
	}

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalShowCmd(),
		newApprovalApproveCmd(),
		newApprovalRejectCmd(),
		newApprovalCancelCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval requests",
		RunE:  runApprovalList,
	}
	cmd.Flags().String("status", "pending", "Filter by status (pending|approved|rejected|cancelled|all)")
	cmd.Flags().String("session", "", "Filter by session id")
	return cmd
}

func newApprovalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an approval request",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalShow,
	}
}

func newApprovalApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an approval request",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalApprove,
	}
	cmd.Flags().String("by", "", "Decision maker")
	cmd.Flags().String("note", "", "Decision note")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newApprovalRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an approval request",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalReject,
	}
	cmd.Flags().String("by", "", "Decision maker")
	cmd.Flags().String("note", "", "Decision note")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newApprovalCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an approval request",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalCancel,
	}
	cmd.Flags().String("reason", "", "Cancellation reason")
	return cmd
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	coordinator, err := loadCoordinator()
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	sessionID, _ := cmd.Flags().GetString("session")

	query := approval.Query{SessionID: strings.TrimSpace(sessionID)}
	if s := strings.ToLower(strings.TrimSpace(status)); s != "" && s != "all" {
		query.Status = approval.Status(s)
	}

	requests, err := coordinator.List(query)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No matching approvals.")
		return nil
	}

	for _, req := range requests {
		fmt.Printf("%s  %-9s  agent=%s session=%s expires=%s\n",
			req.ID, req.Status, req.AgentID, req.SessionID, req.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runApprovalShow(cmd *cobra.Command, args []string) error {
	coordinator, err := loadCoordinator()
	if err != nil {
		return err
	}

	req, found, err := coordinator.Get(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("approval %s not found", args[0])
	}

	fmt.Printf("ID:         %s\n", req.ID)
	fmt.Printf("Status:     %s\n", req.Status)
	fmt.Printf("Session:    %s\n", req.SessionID)
	fmt.Printf("Agent:      %s\n", req.AgentID)
	if req.Details != "" {
		fmt.Printf("Details:    %s\n", req.Details)
	}
	fmt.Printf("Created:    %s\n", req.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Expires:    %s\n", req.ExpiresAt.Format(time.RFC3339))
	if req.ApprovedBy != "" {
		fmt.Printf("Decided by: %s\n", req.ApprovedBy)
	}
	if req.DecisionNote != "" {
		fmt.Printf("Note:       %s\n", req.DecisionNote)
	}
	if req.CancellationReason != "" {
		fmt.Printf("Reason:     %s\n", req.CancellationReason)
	}
	return nil
}

func runApprovalApprove(cmd *cobra.Command, args []string) error {
	return runApprovalDecision(cmd, args[0], true)
}

func runApprovalReject(cmd *cobra.Command, args []string) error {
	return runApprovalDecision(cmd, args[0], false)
}

func runApprovalDecision(cmd *cobra.Command, id string, approve bool) error {
	coordinator, err := loadCoordinator()
	if err != nil {
		return err
	}

	by, _ := cmd.Flags().GetString("by")
	note, _ := cmd.Flags().GetString("note")
	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("--by is required")
	}

	result, err := coordinator.Resolve(cmd.Context(), id, approval.DecisionInput{
		Approved:   approve,
		ApprovedBy: strings.TrimSpace(by),
		Note:       strings.TrimSpace(note),
	})
	if err != nil {
		return err
	}
	printResult(id, result)
	return nil
}

func runApprovalCancel(cmd *cobra.Command, args []string) error {
	coordinator, err := loadCoordinator()
	if err != nil {
		return err
	}

	reason, _ := cmd.Flags().GetString("reason")
	result, err := coordinator.Cancel(cmd.Context(), args[0], strings.TrimSpace(reason))
	if err != nil {
		return err
	}
	printResult(args[0], result)
	return nil
}

func printResult(id string, result approval.Result) {
	switch result.Outcome {
	case approval.OutcomeOK:
		fmt.Printf("Approval %s is now %s.\n", id, result.Request.Status)
	case approval.OutcomeNotFound:
		fmt.Printf("Approval %s not found.\n", id)
	case approval.OutcomeExpired:
		fmt.Printf("Approval %s expired before a decision was made.\n", id)
	case approval.OutcomeAlreadyResolved, approval.OutcomeAlreadyCancelled, approval.OutcomeAlreadyTerminal:
		fmt.Printf("Approval %s was already settled: %s.\n", id, result.Detail)
	case approval.OutcomeNotExpired:
		fmt.Printf("Approval %s has not reached its deadline yet.\n", id)
	default:
		fmt.Printf("Approval %s: %s.\n", id, result.Outcome)
	}
}

// loadCoordinator builds a coordinator over the persisted workspace state.
// CLI invocations act directly on the store; notifications are the running
// server's job, so no notifier is wired here.
func loadCoordinator() (*approval.Coordinator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}

	store := approval.NewFileStore(workspacePath)
	auditLog := audit.NewWriter(workspacePath)
	sessions := session.NewManager(workspacePath, nil)

	return approval.NewCoordinator(store, nil, sessions, auditLog, approval.Options{
		DefaultTimeout: cfg.Approvals.DefaultTimeout(),
	}), nil
}
