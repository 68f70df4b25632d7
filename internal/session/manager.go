package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	sessionsFileMode = 0644
	sessionsDirMode  = 0755
)

// Status is the lifecycle state of an agent session.
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingApproval Status = "waiting_approval"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// Session is one tracked coding-agent session.
type Session struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Task      string    `json:"task,omitempty"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResumeFunc is invoked when a session blocked on approval may continue.
type ResumeFunc func(sessionID string)

// Manager tracks agent sessions and persists them under
// <workspace>/state/sessions.json. It does not own session processes; it is
// the directory other components consult for session status.
type Manager struct {
	path     string
	onResume ResumeFunc

	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager rooted at the workspace. Existing
// state is loaded from disk; a missing file starts empty.
func NewManager(workspace string, onResume ResumeFunc) *Manager {
	m := &Manager{
		path:     filepath.Join(workspace, "state", "sessions.json"),
		onResume: onResume,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	m.loadFromDisk()
	return m
}

// Register adds a new running session.
func (m *Manager) Register(id, agentID, task string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, fmt.Errorf("session id is required")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Session{}, fmt.Errorf("agent id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return Session{}, fmt.Errorf("session already exists: %s", id)
	}

	now := m.now().UTC()
	sess := &Session{
		ID:        id,
		AgentID:   agentID,
		Task:      strings.TrimSpace(task),
		Status:    StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.sessions[id] = sess
	if err := m.saveLocked(); err != nil {
		delete(m.sessions, id)
		return Session{}, err
	}
	return *sess, nil
}

// SetStatus updates a session's lifecycle state.
func (m *Manager) SetStatus(id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.Status = status
	sess.UpdatedAt = m.now().UTC()
	return m.saveLocked()
}

// Get returns a session by id.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Status returns a session's status. It satisfies the coordinator's session
// directory contract.
func (m *Manager) Status(id string) (string, bool) {
	sess, ok := m.Get(id)
	if !ok {
		return "", false
	}
	return string(sess.Status), true
}

// SignalResumable marks a session blocked on approval as running again and
// invokes the resume hook. Sessions in any other state are left untouched.
func (m *Manager) SignalResumable(id string) error {
	id = strings.TrimSpace(id)

	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.Status != StatusWaitingApproval {
		status := sess.Status
		m.mu.Unlock()
		slog.Debug("resume signal ignored, session not waiting", "session_id", id, "status", status)
		return nil
	}
	sess.Status = StatusRunning
	sess.UpdatedAt = m.now().UTC()
	err := m.saveLocked()
	onResume := m.onResume
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if onResume != nil {
		onResume(id)
	}
	slog.Info("session resumable", "session_id", id)
	return nil
}

// List returns all sessions, newest first.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, *sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}

func (m *Manager) loadFromDisk() {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read session state", "path", m.path, "error", err)
		}
		return
	}

	var stored []Session
	if err := json.Unmarshal(raw, &stored); err != nil {
		slog.Warn("failed to parse session state, starting empty", "path", m.path, "error", err)
		return
	}
	for i := range stored {
		sess := stored[i]
		if strings.TrimSpace(sess.ID) == "" {
			continue
		}
		m.sessions[sess.ID] = &sess
	}
}

func (m *Manager) saveLocked() error {
	all := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, *sess)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	encoded, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), sessionsDirMode); err != nil {
		return fmt.Errorf("create session state dir: %w", err)
	}
	if err := os.WriteFile(m.path, encoded, sessionsFileMode); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}
