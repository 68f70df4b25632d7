package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSweepInterval = 30 * time.Second
	minSweepInterval     = 10 * time.Second
	maxSweepInterval     = 5 * time.Minute
	defaultMaxConcurrent = 10
)

// SweepConfig controls the expiry sweep loop.
type SweepConfig struct {
	Interval      time.Duration
	MaxConcurrent int
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Interval <= 0 {
		c.Interval = defaultSweepInterval
	}
	if c.Interval < minSweepInterval {
		c.Interval = minSweepInterval
	}
	if c.Interval > maxSweepInterval {
		c.Interval = maxSweepInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	return c
}

// Sweep periodically discovers pending approvals past their deadline and
// drives them to cancelled through the coordinator's public Expire operation.
// It holds no privileged access to storage beyond the read-only expired query;
// correctness is owned by the coordinator's compare-and-set, so a delayed or
// failed tick never lets an approval be accepted past its deadline.
type Sweep struct {
	coordinator *Coordinator
	store       Store
	cfg         SweepConfig

	now func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
	running bool
}

// NewSweep creates an expiry sweep over the given coordinator and store.
func NewSweep(coordinator *Coordinator, store Store, cfg SweepConfig) *Sweep {
	return &Sweep{
		coordinator: coordinator,
		store:       store,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

// Start launches the periodic sweep loop.
func (s *Sweep) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	s.running = true

	go s.loop(s.stopCh, s.stopped)
	slog.Info("expiry sweep started", "interval", s.cfg.Interval.String(), "max_concurrent", s.cfg.MaxConcurrent)
}

// Stop halts the sweep loop and waits for the in-flight tick to finish.
func (s *Sweep) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	stopped := s.stopped
	s.running = false
	s.stopCh = nil
	s.stopped = nil
	s.mu.Unlock()

	close(stopCh)
	<-stopped
	slog.Info("expiry sweep stopped")
}

// IsRunning returns true when the sweep loop is active.
func (s *Sweep) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweep) loop(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := s.RunOnce(context.Background()); err != nil {
				slog.Warn("expiry sweep tick failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep tick. A query failure is returned for the
// loop to log and retry next tick; per-record expiry failures are logged and
// never block the rest of the batch.
func (s *Sweep) RunOnce(ctx context.Context) error {
	now := s.now().UTC()
	overdue, err := s.store.QueryExpiredPending(now)
	if err != nil {
		return fmt.Errorf("query expired pending approvals: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var expired, raced, failed int64
	var countMu sync.Mutex

	for _, req := range overdue {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.coordinator.Expire(ctx, id)
			countMu.Lock()
			defer countMu.Unlock()
			switch {
			case err != nil:
				failed++
				slog.Warn("expire failed, will retry next tick", "approval_id", id, "error", err)
			case result.OK():
				expired++
			default:
				// A concurrent resolve won; the expected outcome of the race.
				raced++
				slog.Debug("approval already settled", "approval_id", id, "outcome", result.Outcome)
			}
		}(req.ID)
	}
	wg.Wait()

	slog.Info("expiry sweep tick", "overdue", len(overdue), "expired", expired, "raced", raced, "failed", failed)
	return nil
}
