package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/config"
)

func TestApprovalList_ShowsPendingOnly(t *testing.T) {
	prepareWorkspace(t)
	ctx := context.Background()

	coordinator, err := loadCoordinator()
	if err != nil {
		t.Fatalf("loadCoordinator: %v", err)
	}
	pending, err := coordinator.Create(ctx, approval.CreateInput{
		SessionID: "sess-1",
		AgentID:   "agent-1",
		Details:   "run deploy script",
	})
	if err != nil {
		t.Fatalf("Create pending approval: %v", err)
	}
	approved, err := coordinator.Create(ctx, approval.CreateInput{
		SessionID: "sess-2",
		AgentID:   "agent-2",
	})
	if err != nil {
		t.Fatalf("Create approval to approve: %v", err)
	}
	if result, err := coordinator.Resolve(ctx, approved.ID, approval.DecisionInput{
		Approved:   true,
		ApprovedBy: "owner",
	}); err != nil || !result.OK() {
		t.Fatalf("Resolve approval: result=%+v err=%v", result, err)
	}

	cmd := newApprovalListCmd()
	output := captureOutput(t, func() {
		if err := runApprovalList(cmd, nil); err != nil {
			t.Fatalf("runApprovalList: %v", err)
		}
	})

	if !strings.Contains(output, pending.ID) {
		t.Fatalf("expected pending id %q in output, got: %s", pending.ID, output)
	}
	if strings.Contains(output, approved.ID) {
		t.Fatalf("did not expect approved id %q in output, got: %s", approved.ID, output)
	}
}

func TestApprovalList_NoPending(t *testing.T) {
	prepareWorkspace(t)
	cmd := newApprovalListCmd()
	output := captureOutput(t, func() {
		if err := runApprovalList(cmd, nil); err != nil {
			t.Fatalf("runApprovalList: %v", err)
		}
	})
	if !strings.Contains(output, "No matching approvals.") {
		t.Fatalf("expected no-approvals message, got: %s", output)
	}
}

func TestApprovalApprove_UpdatesDecision(t *testing.T) {
	prepareWorkspace(t)
	ctx := context.Background()

	coordinator, err := loadCoordinator()
	if err != nil {
		t.Fatalf("loadCoordinator: %v", err)
	}
	req, err := coordinator.Create(ctx, approval.CreateInput{
		SessionID: "sess-1",
		AgentID:   "agent-1",
		Details:   "write production config",
	})
	if err != nil {
		t.Fatalf("Create approval: %v", err)
	}

	cmd := newApprovalApproveCmd()
	cmd.SetContext(ctx)
	if err := cmd.Flags().Set("by", "owner"); err != nil {
		t.Fatalf("set --by: %v", err)
	}
	if err := cmd.Flags().Set("note", "looks good"); err != nil {
		t.Fatalf("set --note: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runApprovalApprove(cmd, []string{req.ID}); err != nil {
			t.Fatalf("runApprovalApprove: %v", err)
		}
	})

	if !strings.Contains(output, "approved") {
		t.Fatalf("expected approved output, got: %s", output)
	}

	stored, found, err := coordinator.Get(req.ID)
	if err != nil || !found {
		t.Fatalf("Get approved request: found=%v err=%v", found, err)
	}
	if stored.Status != approval.StatusApproved {
		t.Fatalf("expected approved status, got %s", stored.Status)
	}
	if stored.ApprovedBy != "owner" {
		t.Fatalf("expected approved_by owner, got %q", stored.ApprovedBy)
	}
	if stored.DecisionNote != "looks good" {
		t.Fatalf("expected decision note, got %q", stored.DecisionNote)
	}
}

func TestApprovalApprove_RequiresBy(t *testing.T) {
	prepareWorkspace(t)
	ctx := context.Background()

	coordinator, err := loadCoordinator()
	if err != nil {
		t.Fatalf("loadCoordinator: %v", err)
	}
	req, err := coordinator.Create(ctx, approval.CreateInput{
		SessionID: "sess-1",
		AgentID:   "agent-1",
	})
	if err != nil {
		t.Fatalf("Create approval: %v", err)
	}

	cmd := newApprovalApproveCmd()
	cmd.SetContext(ctx)
	if err := runApprovalApprove(cmd, []string{req.ID}); err == nil {
		t.Fatal("expected error when --by is missing")
	}
}

func TestApprovalCancel_ReportsReason(t *testing.T) {
	prepareWorkspace(t)
	ctx := context.Background()

	coordinator, err := loadCoordinator()
	if err != nil {
		t.Fatalf("loadCoordinator: %v", err)
	}
	req, err := coordinator.Create(ctx, approval.CreateInput{
		SessionID: "sess-1",
		AgentID:   "agent-1",
	})
	if err != nil {
		t.Fatalf("Create approval: %v", err)
	}

	cmd := newApprovalCancelCmd()
	cmd.SetContext(ctx)
	if err := cmd.Flags().Set("reason", "task abandoned"); err != nil {
		t.Fatalf("set --reason: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runApprovalCancel(cmd, []string{req.ID}); err != nil {
			t.Fatalf("runApprovalCancel: %v", err)
		}
	})
	if !strings.Contains(output, "cancelled") {
		t.Fatalf("expected cancelled output, got: %s", output)
	}

	stored, _, err := coordinator.Get(req.ID)
	if err != nil {
		t.Fatalf("Get cancelled request: %v", err)
	}
	if stored.CancellationReason != "task abandoned" {
		t.Fatalf("expected cancellation reason, got %q", stored.CancellationReason)
	}
}

func TestApprovalApprove_NotFound(t *testing.T) {
	prepareWorkspace(t)

	cmd := newApprovalApproveCmd()
	cmd.SetContext(context.Background())
	if err := cmd.Flags().Set("by", "owner"); err != nil {
		t.Fatalf("set --by: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runApprovalApprove(cmd, []string{"missing-id"}); err != nil {
			t.Fatalf("runApprovalApprove: %v", err)
		}
	})
	if !strings.Contains(output, "not found") {
		t.Fatalf("expected not-found output, got: %s", output)
	}
}

func TestApprovalCommand_RegisteredInRoot(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"approval", "list"})
	if err != nil {
		t.Fatalf("find approval list command: %v", err)
	}
	if found == nil || found.Name() != "list" {
		t.Fatalf("expected list command, got %#v", found)
	}
}

func prepareWorkspace(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		t.Fatalf("WorkspacePathChecked: %v", err)
	}
	return workspacePath
}
