package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conductorhq/conductor/internal/audit"
	"github.com/google/uuid"
)

const (
	defaultTimeout = 30 * time.Minute
	minTimeout     = 1 * time.Minute
	maxTimeout     = 24 * time.Hour
)

// Notifier delivers an approval notification to the operator channel.
// Delivery is fire-and-forget: failures are logged by the coordinator and
// never propagate into the lifecycle operation.
type Notifier interface {
	Notify(ctx context.Context, agentID, message string) error
}

// SessionDirectory is the external session collaborator. The coordinator
// reads session status to decide whether a resume signal is meaningful; it
// never owns session lifecycle.
type SessionDirectory interface {
	Status(sessionID string) (string, bool)
	SignalResumable(sessionID string) error
}

// Options bounds the approval timeout window.
type Options struct {
	DefaultTimeout time.Duration
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = defaultTimeout
	}
	if o.MinTimeout <= 0 {
		o.MinTimeout = minTimeout
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = maxTimeout
	}
	return o
}

// Coordinator is the sole authority for creating and terminating approval
// requests. Every transition goes through the store's compare-and-set, so a
// human decision and the expiry sweep racing on the same id produce exactly
// one winner; the loser observes the terminal state and reports it as an
// Outcome.
type Coordinator struct {
	store    Store
	notifier Notifier
	sessions SessionDirectory
	audit    *audit.Writer
	opts     Options
	now      func() time.Time
}

// NewCoordinator creates a coordinator. notifier, sessions, and auditLog may
// be nil; the corresponding side effects are skipped.
func NewCoordinator(store Store, notifier Notifier, sessions SessionDirectory, auditLog *audit.Writer, opts Options) *Coordinator {
	return &Coordinator{
		store:    store,
		notifier: notifier,
		sessions: sessions,
		audit:    auditLog,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Create persists a new pending approval request and notifies the operator.
// Notifier failure is logged, never returned: the request exists and can
// still be resolved by id through any other surface.
func (c *Coordinator) Create(ctx context.Context, input CreateInput) (Request, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return Request{}, fmt.Errorf("session_id is required")
	}
	agentID := strings.TrimSpace(input.AgentID)
	if agentID == "" {
		return Request{}, fmt.Errorf("agent_id is required")
	}

	timeout := input.Timeout
	if timeout == 0 {
		timeout = c.opts.DefaultTimeout
	}
	if timeout < c.opts.MinTimeout || timeout > c.opts.MaxTimeout {
		return Request{}, fmt.Errorf("timeout %s out of range [%s, %s]", timeout, c.opts.MinTimeout, c.opts.MaxTimeout)
	}

	now := c.now().UTC()
	req := Request{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		AgentID:   agentID,
		Details:   strings.TrimSpace(input.Details),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	if err := c.store.Create(req); err != nil {
		return Request{}, fmt.Errorf("persist approval request: %w", err)
	}

	c.appendAudit(audit.Event{
		Time:       now,
		Type:       "approval_created",
		ApprovalID: req.ID,
		SessionID:  req.SessionID,
		AgentID:    req.AgentID,
		Detail:     req.Details,
	})

	if c.notifier != nil {
		message := formatNotification(req)
		if err := c.notifier.Notify(ctx, req.AgentID, message); err != nil {
			slog.Warn("approval notification failed", "approval_id", req.ID, "agent_id", req.AgentID, "error", err)
		}
	}

	slog.Info("approval request created", "approval_id", req.ID, "session_id", req.SessionID, "agent_id", req.AgentID, "expires_at", req.ExpiresAt.Format(time.RFC3339))
	return req, nil
}

// Resolve applies an operator decision to a pending request. The deadline is
// checked on this path as well, so an approval can never be accepted past
// its deadline even when the sweep is delayed.
func (c *Coordinator) Resolve(ctx context.Context, id string, input DecisionInput) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, fmt.Errorf("approval id is required")
	}
	approvedBy := strings.TrimSpace(input.ApprovedBy)
	if approvedBy == "" {
		return Result{}, fmt.Errorf("approved_by is required")
	}

	req, found, err := c.store.Get(id)
	if err != nil {
		return Result{}, fmt.Errorf("load approval request: %w", err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if terminal, done := classifyTerminal(req); done {
		return terminal, nil
	}

	now := c.now().UTC()
	if req.Expired(now) {
		return Result{Outcome: OutcomeExpired, Request: req, Detail: "deadline passed at " + req.ExpiresAt.Format(time.RFC3339)}, nil
	}

	updated := req
	updated.UpdatedAt = now
	updated.DecisionNote = strings.TrimSpace(input.Note)
	if input.Approved {
		updated.Status = StatusApproved
		updated.ApprovedAt = now
		updated.ApprovedBy = approvedBy
	} else {
		updated.Status = StatusRejected
	}

	won, err := c.store.CompareAndSetStatus(id, StatusPending, updated)
	if err != nil {
		return Result{}, fmt.Errorf("update approval request: %w", err)
	}
	if !won {
		return c.loserResult(id)
	}

	eventType := "approval_rejected"
	if input.Approved {
		eventType = "approval_approved"
	}
	c.appendAudit(audit.Event{
		Time:       now,
		Type:       eventType,
		ApprovalID: updated.ID,
		SessionID:  updated.SessionID,
		AgentID:    updated.AgentID,
		Actor:      approvedBy,
		Detail:     updated.DecisionNote,
	})

	if input.Approved {
		c.signalResume(updated)
	}

	slog.Info("approval request resolved", "approval_id", updated.ID, "status", updated.Status, "by", approvedBy)
	return Result{Outcome: OutcomeOK, Request: updated}, nil
}

// Cancel transitions a pending request to cancelled with an operator-supplied
// reason. Already-terminal requests are an idempotent no-op.
func (c *Coordinator) Cancel(ctx context.Context, id, reason string) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by operator"
	}
	return c.cancelWith(id, reason, "approval_cancelled", "")
}

// Expire transitions a pending, past-deadline request to cancelled with the
// Timeout reason. It is invoked by the expiry sweep but tolerates external
// callers: already-terminal requests are an idempotent no-op, and requests
// whose deadline has not passed are left untouched.
func (c *Coordinator) Expire(ctx context.Context, id string) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, fmt.Errorf("approval id is required")
	}

	req, found, err := c.store.Get(id)
	if err != nil {
		return Result{}, fmt.Errorf("load approval request: %w", err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if req.Status.Terminal() {
		return Result{Outcome: OutcomeAlreadyTerminal, Request: req, Detail: terminalDetail(req)}, nil
	}

	now := c.now().UTC()
	if !req.Expired(now) {
		return Result{Outcome: OutcomeNotExpired, Request: req}, nil
	}

	return c.cancelWith(id, ReasonTimeout, "approval_expired", "system")
}

// Get returns a single request by id.
func (c *Coordinator) Get(id string) (Request, bool, error) {
	return c.store.Get(strings.TrimSpace(id))
}

// List returns requests matching the query.
func (c *Coordinator) List(query Query) ([]Request, error) {
	return c.store.List(query)
}

func (c *Coordinator) cancelWith(id, reason, eventType, actor string) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, fmt.Errorf("approval id is required")
	}

	req, found, err := c.store.Get(id)
	if err != nil {
		return Result{}, fmt.Errorf("load approval request: %w", err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if req.Status.Terminal() {
		return Result{Outcome: OutcomeAlreadyTerminal, Request: req, Detail: terminalDetail(req)}, nil
	}

	now := c.now().UTC()
	updated := req
	updated.Status = StatusCancelled
	updated.CancellationReason = reason
	updated.UpdatedAt = now

	won, err := c.store.CompareAndSetStatus(id, StatusPending, updated)
	if err != nil {
		return Result{}, fmt.Errorf("update approval request: %w", err)
	}
	if !won {
		// Lost the race: report the winner's terminal state, change nothing.
		current, stillFound, err := c.store.Get(id)
		if err != nil {
			return Result{}, fmt.Errorf("reload approval request: %w", err)
		}
		if !stillFound {
			return Result{Outcome: OutcomeNotFound}, nil
		}
		return Result{Outcome: OutcomeAlreadyTerminal, Request: current, Detail: terminalDetail(current)}, nil
	}

	c.appendAudit(audit.Event{
		Time:       now,
		Type:       eventType,
		ApprovalID: updated.ID,
		SessionID:  updated.SessionID,
		AgentID:    updated.AgentID,
		Actor:      actor,
		Detail:     reason,
	})

	slog.Info("approval request cancelled", "approval_id", updated.ID, "reason", reason)
	return Result{Outcome: OutcomeOK, Request: updated}, nil
}

// loserResult classifies a lost compare-and-set by re-reading the record.
func (c *Coordinator) loserResult(id string) (Result, error) {
	current, found, err := c.store.Get(id)
	if err != nil {
		return Result{}, fmt.Errorf("reload approval request: %w", err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if terminal, done := classifyTerminal(current); done {
		return terminal, nil
	}
	// Only a status change can make the compare-and-set fail, so a reload
	// showing pending again means the store broke its contract.
	return Result{}, fmt.Errorf("approval %s changed concurrently but is still pending", id)
}

func (c *Coordinator) signalResume(req Request) {
	if c.sessions == nil {
		return
	}
	status, known := c.sessions.Status(req.SessionID)
	if !known {
		slog.Warn("approved session unknown, skipping resume signal", "approval_id", req.ID, "session_id", req.SessionID)
		return
	}
	if err := c.sessions.SignalResumable(req.SessionID); err != nil {
		slog.Warn("session resume signal failed", "approval_id", req.ID, "session_id", req.SessionID, "session_status", status, "error", err)
	}
}

func (c *Coordinator) appendAudit(event audit.Event) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Append(event); err != nil {
		slog.Warn("audit append failed", "type", event.Type, "approval_id", event.ApprovalID, "error", err)
	}
}

func classifyTerminal(req Request) (Result, bool) {
	switch req.Status {
	case StatusCancelled:
		return Result{Outcome: OutcomeAlreadyCancelled, Request: req, Detail: req.CancellationReason}, true
	case StatusApproved, StatusRejected:
		return Result{Outcome: OutcomeAlreadyResolved, Request: req, Detail: terminalDetail(req)}, true
	default:
		return Result{}, false
	}
}

func terminalDetail(req Request) string {
	switch req.Status {
	case StatusCancelled:
		return req.CancellationReason
	case StatusApproved:
		return "approved by " + req.ApprovedBy
	case StatusRejected:
		return "rejected"
	default:
		return ""
	}
}

func formatNotification(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required for agent %s (session %s)\n", req.AgentID, req.SessionID)
	if req.Details != "" {
		fmt.Fprintf(&b, "Request: %s\n", req.Details)
	}
	fmt.Fprintf(&b, "Expires: %s\n", req.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Reply /approve %s or /reject %s", req.ID, req.ID)
	return b.String()
}
