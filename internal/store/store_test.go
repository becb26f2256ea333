package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/enrich"
	"github.com/fyrsmithlabs/resultd/internal/logging"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	return NewRegistry(root, logging.NewNop()), root
}

func makeArtifact(cat artifact.Category, content string, at time.Time) artifact.Artifact {
	return enrich.Enrich(cat, []byte(content), "/src/input", at)
}

func TestPersistLayout(t *testing.T) {
	reg, root := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)

	at := time.Date(2026, 3, 7, 12, 30, 0, 0, time.UTC)
	art := makeArtifact(artifact.CategoryScraping, `{"url":"https://x.test"}`, at)
	require.NoError(t, h.Persist(context.Background(), art))

	want := filepath.Join(root, "scraping", "2026", "03", "07", art.ID+".json")
	_, err := os.Stat(want)
	require.NoError(t, err, "artifact should be at the date-partitioned path")
}

func TestPersistConflict(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)

	art := makeArtifact(artifact.CategoryScraping, `{"url":"https://x.test"}`, time.Now().UTC())
	require.NoError(t, h.Persist(context.Background(), art))

	err := h.Persist(context.Background(), art)
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrPersistConflict)
}

func TestPersistWrongCategory(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)

	art := makeArtifact(artifact.CategoryLogs, "a log line", time.Now().UTC())
	assert.Error(t, h.Persist(context.Background(), art))
}

func TestPersistRawTextCategory(t *testing.T) {
	reg, root := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryLogs)

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	art := makeArtifact(artifact.CategoryLogs, "error: something failed\nretrying", at)
	require.NoError(t, h.Persist(context.Background(), art))

	path := filepath.Join(root, "logs", "2026", "05", "01", art.ID+".log")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error: something failed\nretrying", string(content))
}

func TestStatisticsReflectDisk(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryMetrics)
	ctx := context.Background()

	stats, err := h.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalArtifacts)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		art := makeArtifact(artifact.CategoryMetrics, `{"value":`+string(rune('0'+i))+`}`, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, h.Persist(ctx, art))
	}

	stats, err = h.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.TotalArtifacts)
	assert.Positive(t, stats.StorageBytes)
}

func TestSearch(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)
	ctx := context.Background()

	now := time.Now().UTC()
	withURL := makeArtifact(artifact.CategoryScraping, `{"url":"https://x.test","content":"about golang pipelines"}`, now)
	plain := makeArtifact(artifact.CategoryScraping, `{"title":"unrelated"}`, now.Add(time.Second))
	require.NoError(t, h.Persist(ctx, withURL))
	require.NoError(t, h.Persist(ctx, plain))

	t.Run("by tag", func(t *testing.T) {
		results, err := h.Search(ctx, artifact.SearchQuery{Tags: []string{"web-content"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, withURL.ID, results[0].Artifact.ID)
	})

	t.Run("by text", func(t *testing.T) {
		results, err := h.Search(ctx, artifact.SearchQuery{Text: "golang"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, withURL.ID, results[0].Artifact.ID)
	})

	t.Run("by min quality", func(t *testing.T) {
		results, err := h.Search(ctx, artifact.SearchQuery{MinQuality: withURL.Quality.Score})
		require.NoError(t, err)
		require.Len(t, results, 1)
	})

	t.Run("by date range excludes everything in the past", func(t *testing.T) {
		results, err := h.Search(ctx, artifact.SearchQuery{Since: now.Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, results, "empty result is a valid outcome")
	})

	t.Run("limit is honored", func(t *testing.T) {
		results, err := h.Search(ctx, artifact.SearchQuery{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestCleanupRemovesDuplicates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)
	ctx := context.Background()

	now := time.Now().UTC()
	first := makeArtifact(artifact.CategoryScraping, `{"url":"https://x.test"}`, now)
	dup := makeArtifact(artifact.CategoryScraping, `{"url":"https://x.test"}`, now.Add(time.Minute))
	distinct := makeArtifact(artifact.CategoryScraping, `{"url":"https://y.test"}`, now)
	require.NoError(t, h.Persist(ctx, first))
	require.NoError(t, h.Persist(ctx, dup))
	require.NoError(t, h.Persist(ctx, distinct))

	result, err := h.Cleanup(ctx, CleanupPolicy{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicatesRemoved)
	assert.Positive(t, result.BytesReclaimed)

	stats, err := h.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalArtifacts)
}

func TestCleanupArchivesOldArtifacts(t *testing.T) {
	reg, root := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)
	ctx := context.Background()

	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	old := makeArtifact(artifact.CategoryScraping, `{"url":"https://old.test"}`, now.AddDate(0, 0, -40))
	fresh := makeArtifact(artifact.CategoryScraping, `{"url":"https://fresh.test"}`, now)
	require.NoError(t, h.Persist(ctx, old))
	require.NoError(t, h.Persist(ctx, fresh))

	result, err := h.Cleanup(ctx, CleanupPolicy{RetentionDays: 30, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)

	// Archived artifact left the live subtree and no longer counts.
	stats, err := h.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalArtifacts)

	archived := filepath.Join(root, "scraping", "archive", "2026", "07", old.ID+".json")
	_, err = os.Stat(archived)
	require.NoError(t, err)
}

func TestCleanupCompressesArchive(t *testing.T) {
	reg, root := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryScraping)
	ctx := context.Background()

	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	old := makeArtifact(artifact.CategoryScraping, `{"url":"https://old.test"}`, now.AddDate(0, 0, -40))
	require.NoError(t, h.Persist(ctx, old))

	_, err := h.Cleanup(ctx, CleanupPolicy{RetentionDays: 30, Compress: true, Now: now})
	require.NoError(t, err)

	archived := filepath.Join(root, "scraping", "archive", "2026", "07", old.ID+".json.gz")
	_, err = os.Stat(archived)
	require.NoError(t, err)
}

func TestCleanupSafeOnEmptyStore(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := reg.Resolve(artifact.CategoryEvaluation)

	result, err := h.Cleanup(context.Background(), CleanupPolicy{RetentionDays: 30})
	require.NoError(t, err)
	assert.Zero(t, result.Archived)
	assert.Zero(t, result.DuplicatesRemoved)
}

func TestRegistryResolve(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, cat := range artifact.Categories() {
		h := reg.Resolve(cat)
		assert.Equal(t, cat, h.Category())
	}
	assert.Len(t, reg.Handlers(), len(artifact.Categories()))

	assert.Panics(t, func() {
		reg.Resolve(artifact.Category("bogus"))
	}, "resolution failure is a programming error")
}

func TestStatisticsUnavailableRoot(t *testing.T) {
	// A root whose parent is unreadable still yields zero stats rather
	// than an error when the subtree simply does not exist.
	reg := NewRegistry(filepath.Join(t.TempDir(), "never-created"), logging.NewNop())
	stats, err := reg.Resolve(artifact.CategoryCoding).Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalArtifacts)
}
