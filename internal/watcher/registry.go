// Package watcher binds producer-owned source locations to categories
// and emits a raw arrival whenever a completed write is observed under
// one of them. Watchers run independently; a stuck source cannot starve
// the others or the processor.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Source is one configured {category, path} binding.
type Source struct {
	Category artifact.Category
	Path     string
}

// Enqueue hands an arrival off to the ingestion queue. Implementations
// must be safe for concurrent use; watchers call it from their own
// goroutines.
type Enqueue func(artifact.RawArrival) error

// Registry owns the lifecycle of all source watchers. Start and Stop are
// symmetric scoped operations: after Stop returns, no further arrivals
// are emitted.
type Registry struct {
	sources  []Source
	debounce time.Duration
	enqueue  Enqueue
	logger   *logging.Logger

	mu       sync.Mutex
	running  bool
	watchers []*sourceWatcher
}

// NewRegistry creates a registry for the configured sources.
func NewRegistry(sources []Source, debounce time.Duration, enqueue Enqueue, logger *logging.Logger) *Registry {
	return &Registry{
		sources:  sources,
		debounce: debounce,
		enqueue:  enqueue,
		logger:   logger.Named("watcher"),
	}
}

// Start attempts to start one watcher per existing source path. A path
// that does not exist is skipped and logged, not fatal. Calling Start on
// a running registry is an error.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("watcher registry already running")
	}

	started := make([]*sourceWatcher, 0, len(r.sources))
	for _, src := range r.sources {
		info, err := os.Stat(src.Path)
		if err != nil || !info.IsDir() {
			r.logger.Warn(ctx, "skipping missing source path",
				zap.String("category", string(src.Category)),
				zap.String("path", src.Path),
			)
			continue
		}

		w, err := newSourceWatcher(src, r.debounce, r.enqueue, r.logger)
		if err != nil {
			// Tear down what already started so Start is all-or-nothing.
			for _, sw := range started {
				sw.stop()
			}
			return fmt.Errorf("%w: %s: %v", ErrWatcherFailed, src.Path, err)
		}
		started = append(started, w)

		r.logger.Info(ctx, "watching source",
			zap.String("category", string(src.Category)),
			zap.String("path", src.Path),
		)
	}

	r.watchers = started
	r.running = true
	return nil
}

// Stop closes every active watcher and guarantees no further arrivals
// are emitted afterward. Idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	for _, w := range r.watchers {
		w.stop()
	}
	r.watchers = nil
	r.running = false
}

// Active returns the number of running watchers.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// sourceWatcher observes one source root recursively. Each watcher runs
// its own event goroutine, so a blocked source cannot stall the rest.
type sourceWatcher struct {
	source   Source
	watcher  *fsnotify.Watcher
	debounce time.Duration
	enqueue  Enqueue
	logger   *logging.Logger
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	timers  map[string]*time.Timer
}

func newSourceWatcher(src Source, debounce time.Duration, enqueue Enqueue, logger *logging.Logger) (*sourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &sourceWatcher{
		source:   src,
		watcher:  fsw,
		debounce: debounce,
		enqueue:  enqueue,
		logger:   logger.With(zap.String("category", string(src.Category))),
		timers:   make(map[string]*time.Timer),
	}

	// fsnotify does not watch recursively; add the root and every
	// existing subdirectory. New subdirectories are added as their
	// create events arrive.
	err = filepath.WalkDir(src.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *sourceWatcher) run() {
	defer w.wg.Done()
	ctx := context.Background()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

func (w *sourceWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// File vanished between event and stat; nothing to ingest.
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn(ctx, "failed to watch new subdirectory",
					zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}

	w.logger.Trace(ctx, "change notification", zap.String("path", event.Name))
	w.schedule(event.Name)
}

// schedule coalesces change notifications for the same file: a single
// logical write commonly fires several low-level events, and only the
// last one within the debounce window produces an arrival.
func (w *sourceWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.fire(path)
	})
}

// fire emits one arrival for a settled file. Emission happens under the
// watcher lock so it is atomic with stop: once stop has run, no arrival
// can leak out.
func (w *sourceWatcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	delete(w.timers, path)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	arrival := artifact.RawArrival{
		Category:   w.source.Category,
		SourcePath: path,
		DetectedAt: time.Now().UTC(),
		ByteSize:   uint64(info.Size()),
	}
	if err := w.enqueue(arrival); err != nil {
		w.logger.Warn(context.Background(), "failed to enqueue arrival",
			zap.String("path", path), zap.Error(err))
	}
}

func (w *sourceWatcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	_ = w.watcher.Close()
	w.wg.Wait()
}
