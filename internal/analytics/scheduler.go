package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

// SchedulerConfig tunes the background passes.
type SchedulerConfig struct {
	// RefreshInterval is the cadence of analytics recomputation.
	RefreshInterval time.Duration
	// CleanupInterval is the cadence of retention cleanup.
	CleanupInterval time.Duration
	// Workers bounds concurrent per-category passes.
	Workers int
	// Policies maps each category to its cleanup policy.
	Policies map[artifact.Category]store.CleanupPolicy
}

// Scheduler runs the two periodic maintenance passes: analytics refresh
// and retention cleanup. Per-category work is fanned out on a bounded
// worker pool so a slow category does not serialize the whole pass.
//
// Thread Safety: all public methods are thread-safe; the running state
// is protected by a mutex so Start/Stop cannot race.
type Scheduler struct {
	cfg      SchedulerConfig
	engine   *Engine
	handlers *store.Registry
	pool     *ants.Pool
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	reportMu sync.RWMutex
	report   Report
}

// NewScheduler creates a scheduler. It does not run anything until
// Start is called.
func NewScheduler(cfg SchedulerConfig, engine *Engine, handlers *store.Registry, logger *logging.Logger) (*Scheduler, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Scheduler{
		cfg:      cfg,
		engine:   engine,
		handlers: handlers,
		pool:     pool,
		logger:   logger.Named("scheduler"),
	}, nil
}

// Start begins the background passes. An initial refresh runs
// immediately so statistics carry an analytics block from the first
// request on. Calling Start on a running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info(ctx, "scheduler started",
		zap.Duration("refresh_interval", s.cfg.RefreshInterval),
		zap.Duration("cleanup_interval", s.cfg.CleanupInterval),
		zap.Int("workers", s.cfg.Workers),
	)

	go s.run(ctx)

	return nil
}

// Stop halts the background passes and releases the worker pool. It is
// idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.pool.Release()
}

// Report returns the most recent analytics report. Zero value before
// the first refresh completes.
func (s *Scheduler) Report() Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.report
}

// RunOnce performs a single refresh outside the schedule and returns
// the report. Used by the one-shot report command.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	report := s.engine.Refresh(ctx)
	s.reportMu.Lock()
	s.report = report
	s.reportMu.Unlock()
	return report
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "scheduler goroutine panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	refresh := time.NewTicker(s.cfg.RefreshInterval)
	defer refresh.Stop()
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanup.Stop()

	s.safeRefresh(ctx)

	for {
		select {
		case <-refresh.C:
			s.safeRefresh(ctx)

		case <-cleanup.C:
			s.safeCleanup(ctx)

		case <-s.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// safeRefresh recomputes the analytics report. A panic in one pass is
// logged and the schedule continues.
func (s *Scheduler) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "analytics refresh panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	started := time.Now()
	report := s.engine.Refresh(ctx)

	s.reportMu.Lock()
	s.report = report
	s.reportMu.Unlock()

	s.logger.Info(ctx, "analytics refresh completed",
		zap.Int("artifacts", report.TotalArtifacts),
		zap.Float64("average_score", report.AverageScore),
		zap.Int("correlations", len(report.Correlations)),
		zap.Int("excluded", len(report.Excluded)),
		zap.Duration("duration", time.Since(started)),
	)
}

// safeCleanup runs retention cleanup for every category on the worker
// pool and waits for the pass to finish.
func (s *Scheduler) safeCleanup(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "cleanup pass panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	started := time.Now()
	var wg sync.WaitGroup
	var totalMu sync.Mutex
	var total store.CleanupResult

	for _, h := range s.handlers.Handlers() {
		h := h
		policy := s.cfg.Policies[h.Category()]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			res, err := h.Cleanup(ctx, policy)
			if err != nil {
				s.logger.Error(ctx, "category cleanup failed",
					zap.String("category", string(h.Category())),
					zap.Error(err),
				)
				return
			}
			totalMu.Lock()
			total.DuplicatesRemoved += res.DuplicatesRemoved
			total.Archived += res.Archived
			total.BytesReclaimed += res.BytesReclaimed
			totalMu.Unlock()
		})
		if err != nil {
			wg.Done()
			s.logger.Error(ctx, "cleanup submit failed",
				zap.String("category", string(h.Category())),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	s.logger.Info(ctx, "cleanup pass completed",
		zap.Int("duplicates_removed", total.DuplicatesRemoved),
		zap.Int("archived", total.Archived),
		zap.Uint64("bytes_reclaimed", total.BytesReclaimed),
		zap.Duration("duration", time.Since(started)),
	)
}
