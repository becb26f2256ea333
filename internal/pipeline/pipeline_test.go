package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/config"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for _, path := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(artifact.RawArrival{Category: artifact.CategoryCoding, SourcePath: path}))
	}
	assert.Equal(t, 3, q.Len())

	batch := q.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].SourcePath)
	assert.Equal(t, "b", batch[1].SourcePath)
	assert.Equal(t, 1, q.Len())

	batch = q.DequeueBatch(10)
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].SourcePath)
	assert.Nil(t, q.DequeueBatch(1))
}

func TestQueueCloseRejectsButDrains(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Enqueue(artifact.RawArrival{SourcePath: "pending"}))
	q.Close()

	err := q.Enqueue(artifact.RawArrival{SourcePath: "late"})
	require.ErrorIs(t, err, artifact.ErrQueueClosed)

	batch := q.DequeueBatch(5)
	require.Len(t, batch, 1)
	assert.Equal(t, "pending", batch[0].SourcePath)
}

func TestNotifierPublishAndCancel(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(4)

	note := n.Publish(Notification{Kind: EventProcessed, Category: artifact.CategoryCoding})
	assert.NotEmpty(t, note.ID)
	assert.False(t, note.At.IsZero())

	select {
	case got := <-ch:
		assert.Equal(t, EventProcessed, got.Kind)
		assert.Equal(t, artifact.CategoryCoding, got.Category)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
}

func TestNotifierDropsWhenSubscriberFull(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(1)
	defer cancel()

	n.Publish(Notification{Kind: EventArrival})
	n.Publish(Notification{Kind: EventProcessed}) // dropped, buffer full

	got := <-ch
	assert.Equal(t, EventArrival, got.Kind)
	select {
	case <-ch:
		t.Fatal("second notification should have been dropped")
	default:
	}
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestProcessor(t *testing.T, cfg ProcessorConfig) (*Processor, *Queue, *store.Registry, *Notifier) {
	t.Helper()
	logger := logging.NewNop()
	queue := NewQueue()
	handlers := store.NewRegistry(t.TempDir(), logger)
	notifier := NewNotifier()
	return NewProcessor(cfg, queue, handlers, notifier, logger), queue, handlers, notifier
}

func TestProcessorErrorIsolation(t *testing.T) {
	proc, queue, handlers, notifier := newTestProcessor(t, ProcessorConfig{
		Tick: time.Hour, BatchSize: 10, HighWaterMark: 100,
	})
	ch, cancel := notifier.Subscribe(16)
	defer cancel()

	dir := t.TempDir()
	first := writeSource(t, dir, "first.json", `{"source":"a","content":"first payload with enough content"}`)
	third := writeSource(t, dir, "third.json", `{"source":"c","content":"third payload with enough content"}`)

	for _, path := range []string{first, filepath.Join(dir, "missing.json"), third} {
		require.NoError(t, queue.Enqueue(artifact.RawArrival{
			Category:   artifact.CategoryAnalytics,
			SourcePath: path,
			DetectedAt: time.Now(),
		}))
	}

	proc.pass(context.Background())

	kinds := map[EventKind]int{}
	for i := 0; i < 3; i++ {
		select {
		case note := <-ch:
			kinds[note.Kind]++
		case <-time.After(time.Second):
			t.Fatal("missing notification")
		}
	}
	assert.Equal(t, 2, kinds[EventProcessed])
	assert.Equal(t, 1, kinds[EventItemFailed])

	stats, err := handlers.Resolve(artifact.CategoryAnalytics).Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalArtifacts)
	assert.Equal(t, 0, queue.Len())
}

func TestProcessorMalformedContentBecomesText(t *testing.T) {
	proc, queue, handlers, _ := newTestProcessor(t, ProcessorConfig{
		Tick: time.Hour, BatchSize: 10, HighWaterMark: 100,
	})

	path := writeSource(t, t.TempDir(), "broken.json", `{"not valid json`)
	require.NoError(t, queue.Enqueue(artifact.RawArrival{
		Category:   artifact.CategoryScraping,
		SourcePath: path,
		DetectedAt: time.Now(),
	}))

	proc.pass(context.Background())

	results, err := handlers.Resolve(artifact.CategoryScraping).Search(context.Background(), artifact.SearchQuery{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Artifact.Payload.IsText())
	assert.Equal(t, `{"not valid json`, results[0].Artifact.Payload.Text)
}

func TestProcessorScalesBatchAboveHighWaterMark(t *testing.T) {
	proc, queue, handlers, _ := newTestProcessor(t, ProcessorConfig{
		Tick: time.Hour, BatchSize: 1, HighWaterMark: 3,
	})

	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		path := writeSource(t, dir, "item"+string(rune('a'+i))+".json", `{"source":"s","content":"backlog item with enough content to score"}`)
		require.NoError(t, queue.Enqueue(artifact.RawArrival{
			Category:   artifact.CategoryLogs,
			SourcePath: path,
			DetectedAt: time.Now(),
		}))
	}

	// Depth 5 exceeds the mark of 3, so one pass drains everything
	// despite the batch size of 1.
	proc.pass(context.Background())
	assert.Equal(t, 0, queue.Len())

	stats, err := handlers.Resolve(artifact.CategoryLogs).Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.TotalArtifacts)
}

func TestProcessorNeverDeletesSource(t *testing.T) {
	proc, queue, _, _ := newTestProcessor(t, ProcessorConfig{
		Tick: time.Hour, BatchSize: 10, HighWaterMark: 100,
	})

	path := writeSource(t, t.TempDir(), "keep.json", `{"source":"s","content":"producer owns this file"}`)
	require.NoError(t, queue.Enqueue(artifact.RawArrival{
		Category:   artifact.CategoryCoding,
		SourcePath: path,
		DetectedAt: time.Now(),
	}))

	proc.pass(context.Background())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func testConfig(t *testing.T, sources ...config.SourceConfig) config.Config {
	t.Helper()
	cfg := config.Config{
		Storage: config.StorageConfig{Root: t.TempDir()},
		Pipeline: config.PipelineConfig{
			Tick:          config.Duration(20 * time.Millisecond),
			BatchSize:     5,
			HighWaterMark: 100,
			GracePeriod:   config.Duration(2 * time.Second),
		},
		Watch: config.WatchConfig{
			Debounce: config.Duration(30 * time.Millisecond),
			Sources:  sources,
		},
		Analytics: config.AnalyticsConfig{
			RefreshInterval:   config.Duration(time.Hour),
			CleanupInterval:   config.Duration(time.Hour),
			CorrelationWindow: config.Duration(time.Hour),
			Workers:           2,
		},
	}
	return cfg
}

func TestPipelineEndToEnd(t *testing.T) {
	watchDir := t.TempDir()
	cfg := testConfig(t, config.SourceConfig{Category: "scraping", Path: watchDir})

	p, err := New(cfg, logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	ch, cancel := p.Subscribe(16)
	defer cancel()

	writeSource(t, watchDir, "scrape.json", `{"url":"https://example.com","content":"a scraped page body long enough to count"}`)

	deadline := time.After(5 * time.Second)
	var processed Notification
	for processed.Kind != EventProcessed {
		select {
		case note := <-ch:
			if note.Kind == EventProcessed {
				processed = note
			}
		case <-deadline:
			t.Fatal("artifact never processed")
		}
	}
	assert.Equal(t, artifact.CategoryScraping, processed.Category)
	assert.NotEmpty(t, processed.ArtifactID)

	results, err := p.Search(ctx, artifact.CategoryScraping, artifact.SearchQuery{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Artifact.Tags, "web-content")

	stats, _ := p.Statistics(ctx)
	assert.Equal(t, uint64(1), stats.TotalArtifacts)
}

func TestPipelineStopDrainsBacklog(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	dir := t.TempDir()
	path := writeSource(t, dir, "late.json", `{"source":"s","content":"buffered right before shutdown, long enough"}`)
	require.NoError(t, p.queue.Enqueue(artifact.RawArrival{
		Category:   artifact.CategoryMetrics,
		SourcePath: path,
		DetectedAt: time.Now(),
	}))

	require.NoError(t, p.Stop(ctx))

	results, err := p.handlers.Resolve(artifact.CategoryMetrics).Search(ctx, artifact.SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 0, p.QueueDepth())
}

func TestPipelineSearchUnknownCategory(t *testing.T) {
	p, err := New(testConfig(t), logging.NewNop())
	require.NoError(t, err)

	_, err = p.Search(context.Background(), artifact.Category("bogus"), artifact.SearchQuery{})
	require.ErrorIs(t, err, artifact.ErrUnknownCategory)
}
