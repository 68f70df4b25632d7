package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	storeVersion      = 1
	approvalsFileMode = 0644
	approvalsDirMode  = 0755
)

type fileData struct {
	Version  int       `json:"version"`
	Requests []Request `json:"requests"`
}

// FileStore persists approval requests to <workspace>/state/approvals.json.
// Every operation performs a full load-modify-save cycle under one lock, so
// the compare-and-set check and the write are a single atomic unit. Records
// are never removed; terminal requests stay on disk for audit.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed approval store under the workspace.
func NewFileStore(workspace string) *FileStore {
	return &FileStore{path: filepath.Join(workspace, "state", "approvals.json")}
}

// Create inserts a new record.
func (s *FileStore) Create(req Request) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range data.Requests {
		if existing.ID == id {
			return fmt.Errorf("record already exists: %s", id)
		}
	}
	data.Requests = append(data.Requests, req)
	return s.saveLocked(data)
}

// Get returns the record and whether it exists.
func (s *FileStore) Get(id string) (Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return Request{}, false, err
	}
	for _, req := range data.Requests {
		if req.ID == strings.TrimSpace(id) {
			return req, true, nil
		}
	}
	return Request{}, false, nil
}

// CompareAndSetStatus applies the update only if the current status matches.
func (s *FileStore) CompareAndSetStatus(id string, expected Status, updated Request) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	for i := range data.Requests {
		if data.Requests[i].ID != strings.TrimSpace(id) {
			continue
		}
		if data.Requests[i].Status != expected {
			return false, nil
		}
		updated.ID = data.Requests[i].ID
		data.Requests[i] = updated
		if err := s.saveLocked(data); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("record not found: %s", id)
}

// QueryExpiredPending returns pending records past their deadline.
func (s *FileStore) QueryExpiredPending(now time.Time) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	var expired []Request
	for _, req := range data.Requests {
		if req.Status == StatusPending && req.Expired(now) {
			expired = append(expired, req)
		}
	}
	return expired, nil
}

// List returns records matching the query in insertion order.
func (s *FileStore) List(query Query) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	result := make([]Request, 0, len(data.Requests))
	for _, req := range data.Requests {
		if matchesQuery(req, query) {
			result = append(result, req)
		}
	}
	return result, nil
}

func (s *FileStore) loadLocked() (fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileData{Version: storeVersion, Requests: []Request{}}, nil
		}
		return fileData{}, fmt.Errorf("read approval store: %w", err)
	}

	var parsed fileData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fileData{}, fmt.Errorf("parse approval store: %w", err)
	}
	if parsed.Version <= 0 {
		parsed.Version = storeVersion
	}
	if parsed.Requests == nil {
		parsed.Requests = []Request{}
	}
	return parsed, nil
}

func (s *FileStore) saveLocked(data fileData) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal approval store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, approvalsDirMode); err != nil {
		return fmt.Errorf("create approval store dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "approvals-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp approval store: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp approval store: %w", err)
	}
	if err := tmpFile.Chmod(approvalsFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp approval store: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp approval store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace approval store: %w", err)
	}
	return nil
}
