package approval

import (
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
	}
}

func pendingRequest(id string, createdAt time.Time, ttl time.Duration) Request {
	return Request{
		ID:        id,
		SessionID: "sess-" + id,
		AgentID:   "agent-1",
		Status:    StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			req := pendingRequest("req-1", base, time.Hour)
			if err := store.Create(req); err != nil {
				t.Fatalf("Create error: %v", err)
			}

			got, found, err := store.Get("req-1")
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if !found {
				t.Fatal("expected record to exist")
			}
			if got.SessionID != req.SessionID || got.Status != StatusPending {
				t.Fatalf("unexpected record: %+v", got)
			}

			_, found, err = store.Get("missing")
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if found {
				t.Fatal("expected missing record")
			}
		})
	}
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(pendingRequest("req-1", base, time.Hour)); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if err := store.Create(pendingRequest("req-1", base, time.Hour)); err == nil {
				t.Fatal("expected duplicate create to fail")
			}
			if err := store.Create(Request{}); err == nil {
				t.Fatal("expected empty id to fail")
			}
		})
	}
}

func TestStore_CompareAndSetStatus(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			req := pendingRequest("req-1", base, time.Hour)
			if err := store.Create(req); err != nil {
				t.Fatalf("Create error: %v", err)
			}

			approved := req
			approved.Status = StatusApproved
			approved.ApprovedBy = "operator"
			approved.ApprovedAt = base.Add(time.Minute)

			won, err := store.CompareAndSetStatus("req-1", StatusPending, approved)
			if err != nil {
				t.Fatalf("CompareAndSetStatus error: %v", err)
			}
			if !won {
				t.Fatal("expected first compare-and-set to win")
			}

			cancelled := req
			cancelled.Status = StatusCancelled
			cancelled.CancellationReason = ReasonTimeout
			won, err = store.CompareAndSetStatus("req-1", StatusPending, cancelled)
			if err != nil {
				t.Fatalf("CompareAndSetStatus error: %v", err)
			}
			if won {
				t.Fatal("expected stale compare-and-set to lose")
			}

			got, _, err := store.Get("req-1")
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if got.Status != StatusApproved || got.ApprovedBy != "operator" {
				t.Fatalf("loser must not overwrite winner: %+v", got)
			}

			if _, err := store.CompareAndSetStatus("missing", StatusPending, approved); err == nil {
				t.Fatal("expected missing record to error")
			}
		})
	}
}

func TestStore_QueryExpiredPending(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(pendingRequest("overdue", base, time.Minute)); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if err := store.Create(pendingRequest("fresh", base, time.Hour)); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			settled := pendingRequest("settled", base, time.Minute)
			if err := store.Create(settled); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			settled.Status = StatusRejected
			if _, err := store.CompareAndSetStatus("settled", StatusPending, settled); err != nil {
				t.Fatalf("CompareAndSetStatus error: %v", err)
			}

			expired, err := store.QueryExpiredPending(base.Add(5 * time.Minute))
			if err != nil {
				t.Fatalf("QueryExpiredPending error: %v", err)
			}
			if len(expired) != 1 || expired[0].ID != "overdue" {
				t.Fatalf("expected only the overdue record, got %+v", expired)
			}

			// Deadline boundary: a record expiring exactly now is overdue.
			boundary, err := store.QueryExpiredPending(base.Add(time.Minute))
			if err != nil {
				t.Fatalf("QueryExpiredPending error: %v", err)
			}
			if len(boundary) != 1 {
				t.Fatalf("expected boundary record to count as expired, got %+v", boundary)
			}
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			a := pendingRequest("a", base, time.Hour)
			a.AgentID = "agent-a"
			b := pendingRequest("b", base.Add(time.Second), time.Hour)
			b.AgentID = "agent-b"
			for _, req := range []Request{a, b} {
				if err := store.Create(req); err != nil {
					t.Fatalf("Create error: %v", err)
				}
			}

			all, err := store.List(Query{})
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
				t.Fatalf("expected [a b], got %+v", all)
			}

			byAgent, err := store.List(Query{AgentID: "agent-b"})
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(byAgent) != 1 || byAgent[0].ID != "b" {
				t.Fatalf("expected [b], got %+v", byAgent)
			}

			byStatus, err := store.List(Query{Status: StatusApproved})
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(byStatus) != 0 {
				t.Fatalf("expected no approved records, got %+v", byStatus)
			}
		})
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	workspace := t.TempDir()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	store := NewFileStore(workspace)
	req := pendingRequest("req-1", base, time.Hour)
	if err := store.Create(req); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	approved := req
	approved.Status = StatusApproved
	approved.ApprovedBy = "operator"
	if _, err := store.CompareAndSetStatus("req-1", StatusPending, approved); err != nil {
		t.Fatalf("CompareAndSetStatus error: %v", err)
	}

	reopened := NewFileStore(workspace)
	got, found, err := reopened.Get("req-1")
	if err != nil {
		t.Fatalf("Get after reopen error: %v", err)
	}
	if !found {
		t.Fatal("expected record to survive reopen")
	}
	if got.Status != StatusApproved || got.ApprovedBy != "operator" {
		t.Fatalf("unexpected persisted record: %+v", got)
	}
}
