package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/analytics"
	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/config"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
	"github.com/fyrsmithlabs/resultd/internal/watcher"
)

// Pipeline assembles the full ingestion path: watchers feeding the
// queue, the processor draining it into category stores, and the
// background scheduler maintaining analytics and retention. It owns
// the lifecycle of all of them.
type Pipeline struct {
	cfg      config.Config
	queue    *Queue
	handlers *store.Registry
	watchers *watcher.Registry
	proc     *Processor
	sched    *analytics.Scheduler
	agg      *analytics.Aggregator
	notifier *Notifier
	metrics  *Metrics
	logger   *logging.Logger
}

// New wires a pipeline from configuration. Nothing runs until Start.
func New(cfg config.Config, logger *logging.Logger) (*Pipeline, error) {
	log := logger.Named("pipeline")

	queue := NewQueue()
	notifier := NewNotifier()
	metrics := NewMetrics()
	handlers := store.NewRegistry(cfg.Storage.Root, logger)

	enqueue := func(arrival artifact.RawArrival) error {
		if err := queue.Enqueue(arrival); err != nil {
			return err
		}
		metrics.RecordArrival(string(arrival.Category), queue.Len())
		notifier.Publish(Notification{
			Kind:       EventArrival,
			Category:   arrival.Category,
			SourcePath: arrival.SourcePath,
		})
		return nil
	}

	sources := make([]watcher.Source, 0, len(cfg.Watch.Sources))
	for _, src := range cfg.Watch.Sources {
		sources = append(sources, watcher.Source{
			Category: artifact.Category(src.Category),
			Path:     src.Path,
		})
	}
	watchers := watcher.NewRegistry(sources, cfg.Watch.Debounce.Duration(), enqueue, logger)

	proc := NewProcessor(ProcessorConfig{
		Tick:          cfg.Pipeline.Tick.Duration(),
		BatchSize:     cfg.Pipeline.BatchSize,
		HighWaterMark: cfg.Pipeline.HighWaterMark,
	}, queue, handlers, notifier, logger)

	engine := analytics.NewEngine(handlers, cfg.Analytics.CorrelationWindow.Duration(), logger)

	policies := make(map[artifact.Category]store.CleanupPolicy)
	for _, cat := range artifact.Categories() {
		rc := cfg.Retention(cat)
		policies[cat] = store.CleanupPolicy{
			RetentionDays: rc.RetentionDays,
			Compress:      rc.CompressionEnabled,
		}
	}
	sched, err := analytics.NewScheduler(analytics.SchedulerConfig{
		RefreshInterval: cfg.Analytics.RefreshInterval.Duration(),
		CleanupInterval: cfg.Analytics.CleanupInterval.Duration(),
		Workers:         cfg.Analytics.Workers,
		Policies:        policies,
	}, engine, handlers, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return &Pipeline{
		cfg:      cfg,
		queue:    queue,
		handlers: handlers,
		watchers: watchers,
		proc:     proc,
		sched:    sched,
		agg:      analytics.NewAggregator(handlers, logger),
		notifier: notifier,
		metrics:  metrics,
		logger:   log,
	}, nil
}

// Start brings the pipeline up: processor first so arrivals are drained
// from the first moment, then watchers, then the scheduler. Partial
// failure rolls back what already started.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.proc.Start(ctx); err != nil {
		return fmt.Errorf("start processor: %w", err)
	}
	if err := p.watchers.Start(ctx); err != nil {
		_ = p.proc.Stop(ctx, p.cfg.Pipeline.GracePeriod.Duration())
		return fmt.Errorf("start watchers: %w", err)
	}
	if err := p.sched.Start(ctx); err != nil {
		p.watchers.Stop()
		_ = p.proc.Stop(ctx, p.cfg.Pipeline.GracePeriod.Duration())
		return fmt.Errorf("start scheduler: %w", err)
	}

	p.logger.Info(ctx, "pipeline started",
		zap.Int("watchers", p.watchers.Active()),
		zap.String("storage_root", p.cfg.Storage.Root),
	)
	return nil
}

// Stop shuts the pipeline down in intake-first order: watchers stop
// emitting, the queue closes to new arrivals, the processor finishes
// what is already buffered within the grace period, and the scheduler
// halts. Source files are never touched on the way down.
func (p *Pipeline) Stop(ctx context.Context) error {
	started := time.Now()

	p.watchers.Stop()
	p.queue.Close()

	err := p.proc.Stop(ctx, p.cfg.Pipeline.GracePeriod.Duration())
	p.sched.Stop()
	p.notifier.Close()

	if err != nil {
		p.logger.Warn(ctx, "pipeline stopped with backlog remaining",
			zap.Int("queue_depth", p.queue.Len()),
			zap.Duration("duration", time.Since(started)),
		)
		return err
	}

	p.logger.Info(ctx, "pipeline stopped",
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// Search runs a query against one category's store.
func (p *Pipeline) Search(ctx context.Context, cat artifact.Category, q artifact.SearchQuery) ([]artifact.SearchResult, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: %q", artifact.ErrUnknownCategory, cat)
	}
	return p.handlers.Resolve(cat).Search(ctx, q)
}

// Statistics returns the aggregated system view plus the latest
// analytics report.
func (p *Pipeline) Statistics(ctx context.Context) (artifact.SystemStatistics, analytics.Report) {
	return p.agg.Statistics(ctx), p.sched.Report()
}

// Subscribe attaches a notification feed subscriber.
func (p *Pipeline) Subscribe(buffer int) (<-chan Notification, func()) {
	return p.notifier.Subscribe(buffer)
}

// QueueDepth reports the current number of buffered arrivals.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Len()
}

// RunReport performs a one-shot analytics refresh.
func (p *Pipeline) RunReport(ctx context.Context) analytics.Report {
	return p.sched.RunOnce(ctx)
}
