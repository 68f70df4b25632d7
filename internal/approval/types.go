package approval

import "time"

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// ReasonTimeout is the cancellation reason applied by the expiry sweep.
const ReasonTimeout = "Timeout"

// Request is a persisted approval request record.
type Request struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id"`
	AgentID            string    `json:"agent_id"`
	Details            string    `json:"details,omitempty"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	ApprovedAt         time.Time `json:"approved_at,omitempty"`
	ApprovedBy         string    `json:"approved_by,omitempty"`
	DecisionNote       string    `json:"decision_note,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
}

// Expired reports whether the request deadline has passed at the given instant.
func (r Request) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// CreateInput contains fields needed to create an approval request.
type CreateInput struct {
	SessionID string
	AgentID   string
	Details   string
	Timeout   time.Duration
}

// DecisionInput contains fields needed to approve or reject a request.
type DecisionInput struct {
	Approved   bool
	ApprovedBy string
	Note       string
}

// Outcome classifies the result of a lifecycle operation. Terminal-state
// rejections are expected results of the resolve/expire race, not errors.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeAlreadyResolved  Outcome = "already_resolved"
	OutcomeAlreadyCancelled Outcome = "already_cancelled"
	OutcomeExpired          Outcome = "expired"
	OutcomeNotExpired       Outcome = "not_expired"
	OutcomeAlreadyTerminal  Outcome = "already_terminal"
)

// Result is the outcome of a Resolve, Cancel, or Expire call. Request holds
// the record as it stood after the call; Detail carries human-readable
// context such as an existing cancellation reason.
type Result struct {
	Outcome Outcome
	Request Request
	Detail  string
}

// OK reports whether the operation won the transition.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Query filters approval requests when listing.
type Query struct {
	ID        string
	SessionID string
	AgentID   string
	Status    Status
}
