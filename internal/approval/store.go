package approval

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the persistence contract the coordinator relies on. All race
// safety is concentrated in CompareAndSetStatus: the update applies only when
// the record's current status matches the expected prior status, serialized
// per record so different ids never contend.
type Store interface {
	// Create inserts a new record. Fails if the id already exists.
	Create(req Request) error
	// Get returns the record and whether it exists.
	Get(id string) (Request, bool, error)
	// CompareAndSetStatus atomically replaces the record if its current
	// status equals expected. Returns false when a concurrent writer won.
	CompareAndSetStatus(id string, expected Status, updated Request) (bool, error)
	// QueryExpiredPending returns pending records whose deadline has passed.
	QueryExpiredPending(now time.Time) ([]Request, error)
	// List returns records matching the query, oldest first.
	List(query Query) ([]Request, error)
}

// MemoryStore keeps approval records in memory with per-record locking.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	mu  sync.Mutex
	req Request
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

// Create inserts a new record.
func (s *MemoryStore) Create(req Request) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return fmt.Errorf("record already exists: %s", id)
	}
	s.records[id] = &memoryRecord{req: req}
	return nil
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(id string) (Request, bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return Request{}, false, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.req, true, nil
}

// CompareAndSetStatus applies the update only if the current status matches.
func (s *MemoryStore) CompareAndSetStatus(id string, expected Status, updated Request) (bool, error) {
	rec := s.lookup(id)
	if rec == nil {
		return false, fmt.Errorf("record not found: %s", id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.req.Status != expected {
		return false, nil
	}
	updated.ID = rec.req.ID
	rec.req = updated
	return true, nil
}

// QueryExpiredPending returns pending records past their deadline.
func (s *MemoryStore) QueryExpiredPending(now time.Time) ([]Request, error) {
	all := s.snapshot()

	var expired []Request
	for _, req := range all {
		if req.Status == StatusPending && req.Expired(now) {
			expired = append(expired, req)
		}
	}
	return expired, nil
}

// List returns records matching the query, oldest first.
func (s *MemoryStore) List(query Query) ([]Request, error) {
	all := s.snapshot()

	result := make([]Request, 0, len(all))
	for _, req := range all {
		if matchesQuery(req, query) {
			result = append(result, req)
		}
	}
	return result, nil
}

func (s *MemoryStore) lookup(id string) *memoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[strings.TrimSpace(id)]
}

func (s *MemoryStore) snapshot() []Request {
	s.mu.RLock()
	recs := make([]*memoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	all := make([]Request, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		all = append(all, rec.req)
		rec.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

func matchesQuery(req Request, query Query) bool {
	if id := strings.TrimSpace(query.ID); id != "" && req.ID != id {
		return false
	}
	if sid := strings.TrimSpace(query.SessionID); sid != "" && req.SessionID != sid {
		return false
	}
	if aid := strings.TrimSpace(query.AgentID); aid != "" && req.AgentID != aid {
		return false
	}
	if query.Status != "" && req.Status != query.Status {
		return false
	}
	return true
}
