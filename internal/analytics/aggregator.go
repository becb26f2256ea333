package analytics

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

// Aggregator folds per-category statistics into one system view. The
// result is always derived from the stores at call time; nothing here
// keeps counters of its own.
type Aggregator struct {
	handlers *store.Registry
	logger   *logging.Logger
}

// NewAggregator creates an aggregator over the handler registry.
func NewAggregator(handlers *store.Registry, logger *logging.Logger) *Aggregator {
	return &Aggregator{handlers: handlers, logger: logger.Named("aggregator")}
}

// Statistics sums category statistics and buckets quality scores. A
// failing handler is logged and listed in Excluded; it never fails the
// aggregate.
func (a *Aggregator) Statistics(ctx context.Context) artifact.SystemStatistics {
	stats := artifact.SystemStatistics{
		ByCategory: make(map[artifact.Category]artifact.CategoryStatistics),
	}

	for _, h := range a.handlers.Handlers() {
		cat := h.Category()

		cs, err := h.Statistics(ctx)
		if err != nil {
			a.logger.Warn(ctx, "category excluded from statistics",
				zap.String("category", string(cat)),
				zap.Error(err),
			)
			stats.Excluded = append(stats.Excluded, cat)
			continue
		}
		stats.ByCategory[cat] = cs
		stats.TotalArtifacts += cs.TotalArtifacts
		stats.StorageBytes += cs.StorageBytes

		// Bucketing needs the scores themselves, not just counts. A
		// search failure degrades the distribution but not the totals.
		results, err := h.Search(ctx, artifact.SearchQuery{})
		if err != nil {
			a.logger.Warn(ctx, "quality distribution incomplete",
				zap.String("category", string(cat)),
				zap.Error(err),
			)
			continue
		}
		for _, r := range results {
			stats.Quality[artifact.Bucket(r.Artifact.Quality.Score)]++
		}
	}

	sort.Slice(stats.Excluded, func(i, j int) bool { return stats.Excluded[i] < stats.Excluded[j] })
	return stats
}
