package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/enrich"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

func seedArtifact(t *testing.T, handlers *store.Registry, cat artifact.Category, content string, at time.Time) artifact.Artifact {
	t.Helper()
	art := enrich.Enrich(cat, []byte(content), "/tmp/seed", at)
	require.NoError(t, handlers.Resolve(cat).Persist(context.Background(), art))
	return art
}

func TestEngineRefreshTrendsAndPatterns(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	now := time.Now().UTC().Truncate(time.Hour).Add(30 * time.Minute)
	rich := `{"source":"crawler","timestamp":"2026-08-30T10:00:00Z","content":"a long scraped body with plenty of content to clear the minimum"}`
	seedArtifact(t, handlers, artifact.CategoryScraping, rich, now)
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"content":"short"}`, now.Add(time.Minute))

	report := engine.Refresh(context.Background())

	require.Len(t, report.Trends, 1)
	trend := report.Trends[0]
	assert.Equal(t, artifact.CategoryScraping, trend.Category)
	assert.Equal(t, 2, trend.Count)
	assert.Greater(t, trend.MaxScore, trend.MinScore)
	assert.NotEmpty(t, trend.CommonIssues)

	require.Len(t, report.Patterns, 1)
	assert.Equal(t, 2, report.Patterns[0].Total)
	assert.Equal(t, now.Hour(), report.Patterns[0].PeakHour)

	assert.Equal(t, 2, report.TotalArtifacts)
}

func TestEngineCorrelationWithinWindow(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	now := time.Now().UTC()
	// Every scraping/coding pair lands inside the window, so the
	// correlation is 1.0 and clears the significance floor.
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"source":"a","content":"scrape result with sufficient detail here"}`, now)
	seedArtifact(t, handlers, artifact.CategoryCoding, `{"source":"b","content":"matching code analysis run at the same time"}`, now.Add(5*time.Minute))

	report := engine.Refresh(context.Background())

	require.Len(t, report.Correlations, 1)
	corr := report.Correlations[0]
	assert.Equal(t, [2]artifact.Category{artifact.CategoryCoding, artifact.CategoryScraping}, corr.Categories)
	assert.InDelta(t, 1.0, corr.Strength, 0.001)
}

func TestEngineNoCorrelationOutsideWindow(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	now := time.Now().UTC()
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"source":"a","content":"first event well before the second one"}`, now.Add(-3*time.Hour))
	seedArtifact(t, handlers, artifact.CategoryCoding, `{"source":"b","content":"second event hours later than the first"}`, now)

	report := engine.Refresh(context.Background())
	assert.Empty(t, report.Correlations)
}

func TestEngineRecommendationsForPoorQuality(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	now := time.Now().UTC()
	// Empty payloads score zero and carry the three baseline issues.
	seedArtifact(t, handlers, artifact.CategoryLogs, "", now)
	seedArtifact(t, handlers, artifact.CategoryLogs, " \n", now.Add(time.Second))

	report := engine.Refresh(context.Background())

	assert.Less(t, report.AverageScore, 50.0)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "Critical")
}

func TestEngineTagClusters(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	now := time.Now().UTC()
	// Identical shape, identical tag set, different content.
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"url":"https://a.example","content":"first page body long enough to assess"}`, now)
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"url":"https://b.example","content":"second page body long enough to assess"}`, now.Add(time.Second))

	report := engine.Refresh(context.Background())

	require.NotEmpty(t, report.Clusters)
	assert.Equal(t, 2, report.Clusters[0].Count)
	assert.Contains(t, report.Clusters[0].Tags, "web-content")
}

func TestAggregatorStatistics(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	agg := NewAggregator(handlers, logging.NewNop())

	now := time.Now().UTC()
	seedArtifact(t, handlers, artifact.CategoryScraping, `{"source":"a","timestamp":"2026-08-30T08:00:00Z","content":"high quality payload with source timestamp and body"}`, now)
	seedArtifact(t, handlers, artifact.CategoryLogs, "", now)

	stats := agg.Statistics(context.Background())

	assert.Equal(t, uint64(2), stats.TotalArtifacts)
	assert.Greater(t, stats.StorageBytes, uint64(0))
	assert.Equal(t, uint64(1), stats.ByCategory[artifact.CategoryScraping].TotalArtifacts)
	assert.Equal(t, uint64(1), stats.ByCategory[artifact.CategoryLogs].TotalArtifacts)
	assert.Empty(t, stats.Excluded)

	// The empty payload scores zero and lands in the lowest bucket.
	assert.GreaterOrEqual(t, stats.Quality[0], uint64(1))
}

func TestSchedulerRunOnceAndReport(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	sched, err := NewScheduler(SchedulerConfig{
		RefreshInterval: time.Hour,
		CleanupInterval: time.Hour,
		Workers:         2,
	}, engine, handlers, logging.NewNop())
	require.NoError(t, err)

	assert.True(t, sched.Report().GeneratedAt.IsZero())

	seedArtifact(t, handlers, artifact.CategoryMetrics, `{"source":"probe","content":"one metric sample with enough payload"}`, time.Now().UTC())
	report := sched.RunOnce(context.Background())

	assert.Equal(t, 1, report.TotalArtifacts)
	assert.Equal(t, report.GeneratedAt, sched.Report().GeneratedAt)
}

func TestSchedulerLifecycle(t *testing.T) {
	handlers := store.NewRegistry(t.TempDir(), logging.NewNop())
	engine := NewEngine(handlers, time.Hour, logging.NewNop())

	sched, err := NewScheduler(SchedulerConfig{
		RefreshInterval: 10 * time.Millisecond,
		CleanupInterval: time.Hour,
		Workers:         1,
	}, engine, handlers, logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))
	require.Error(t, sched.Start(ctx))

	deadline := time.After(2 * time.Second)
	for sched.Report().GeneratedAt.IsZero() {
		select {
		case <-deadline:
			t.Fatal("initial refresh never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sched.Stop()
	sched.Stop() // idempotent
}
