package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/enrich"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

// ProcessorConfig tunes the drain loop.
type ProcessorConfig struct {
	// Tick is the drain cadence.
	Tick time.Duration

	// BatchSize is the number of arrivals taken per tick under normal
	// load.
	BatchSize int

	// HighWaterMark is the queue depth above which the processor scales
	// the batch to the full backlog. Items are never dropped; the queue
	// only gets shorter by being processed.
	HighWaterMark int
}

// Processor drains the arrival queue on a fixed tick, enriching each
// item and handing it to the category's storage handler. It is the
// single consumer of the queue.
//
// Thread Safety: all public methods are safe for concurrent use. The
// running state is protected by a mutex so Start/Stop cannot race.
type Processor struct {
	cfg      ProcessorConfig
	queue    *Queue
	handlers *store.Registry
	notifier *Notifier
	metrics  *Metrics
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewProcessor creates a processor. It does not start draining until
// Start is called.
func NewProcessor(cfg ProcessorConfig, queue *Queue, handlers *store.Registry, notifier *Notifier, logger *logging.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		queue:    queue,
		handlers: handlers,
		notifier: notifier,
		metrics:  NewMetrics(),
		logger:   logger.Named("processor"),
	}
}

// Start begins the background drain loop. Calling Start on a running
// processor is an error.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("processor is already running")
	}

	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true

	p.logger.Info(ctx, "processor started",
		zap.Duration("tick", p.cfg.Tick),
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int("high_water_mark", p.cfg.HighWaterMark),
	)

	go p.run(ctx)

	return nil
}

// Stop signals the loop to finish and waits for the in-flight pass,
// bounded by grace. On timeout the remaining backlog stays in the queue
// untouched; source files are never deleted, so nothing is lost.
func (p *Processor) Stop(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		p.logger.Warn(ctx, "processor stop exceeded grace period",
			zap.Duration("grace", grace),
			zap.Int("queue_depth", p.queue.Len()),
		)
		return fmt.Errorf("processor did not stop within %s", grace)
	}
}

// run is the drain loop. One final pass runs after the stop signal so a
// graceful shutdown finishes what was already queued.
func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "processor goroutine panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pass(ctx)

		case <-p.stopCh:
			// Intake has stopped by now, so this terminates.
			for p.queue.Len() > 0 {
				p.pass(ctx)
			}
			p.logger.Debug(ctx, "processor stopped",
				zap.Int("queue_depth", p.queue.Len()),
			)
			return

		case <-ctx.Done():
			return
		}
	}
}

// pass takes one batch off the queue and processes every item in it.
func (p *Processor) pass(ctx context.Context) {
	n := p.cfg.BatchSize
	if depth := p.queue.Len(); depth > p.cfg.HighWaterMark {
		p.logger.Warn(ctx, "queue above high water mark, draining full backlog",
			zap.Int("depth", depth),
			zap.Int("high_water_mark", p.cfg.HighWaterMark),
		)
		n = depth
	}

	batch := p.queue.DequeueBatch(n)
	p.metrics.RecordBatch(len(batch), p.queue.Len())
	if len(batch) == 0 {
		return
	}

	for _, arrival := range batch {
		p.processOne(ctx, arrival)
	}
}

// processOne ingests a single arrival. A failure is recorded and
// reported but never aborts the rest of the batch.
func (p *Processor) processOne(ctx context.Context, arrival artifact.RawArrival) {
	ctx = logging.WithCategory(logging.WithSourcePath(ctx, arrival.SourcePath), string(arrival.Category))
	started := time.Now()

	art, err := p.ingest(ctx, arrival)
	if err != nil {
		p.metrics.RecordFailure(string(arrival.Category))
		p.logger.Error(ctx, "arrival processing failed", zap.Error(err))
		p.notifier.Publish(Notification{
			Kind:       EventItemFailed,
			Category:   arrival.Category,
			SourcePath: arrival.SourcePath,
			Error:      err.Error(),
		})
		return
	}

	p.metrics.RecordProcessed(string(art.Category), time.Since(started).Seconds())
	p.logger.Debug(ctx, "artifact persisted",
		zap.String("artifact_id", art.ID),
		zap.Int("quality_score", art.Quality.Score),
	)
	p.notifier.Publish(Notification{
		Kind:       EventProcessed,
		Category:   art.Category,
		SourcePath: arrival.SourcePath,
		ArtifactID: art.ID,
	})
}

func (p *Processor) ingest(ctx context.Context, arrival artifact.RawArrival) (artifact.Artifact, error) {
	// The producer keeps ownership of the source file; we only read it.
	content, err := os.ReadFile(arrival.SourcePath)
	if err != nil {
		return artifact.Artifact{}, &artifact.TransientIOError{Path: arrival.SourcePath, Err: err}
	}

	art := enrich.Enrich(arrival.Category, content, arrival.SourcePath, time.Now().UTC())

	handler := p.handlers.Resolve(arrival.Category)
	if err := handler.Persist(ctx, art); err != nil {
		return artifact.Artifact{}, fmt.Errorf("persist %s/%s: %w", art.Category, art.ID, err)
	}
	return art, nil
}
