// Package analytics derives reports from the persisted artifact corpus:
// per-category quality trends, cross-category temporal correlations,
// hourly volume patterns, and recommendation synthesis. Everything here
// is read-only over the store and recomputable at any time.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/enrich"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/store"
)

// defaultLookback bounds how far back a refresh scans.
const defaultLookback = 30 * 24 * time.Hour

// significantCorrelation is the floor below which a category pair is
// omitted from the report.
const significantCorrelation = 0.3

// IssueCount is one quality issue with its occurrence count.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// QualityTrend summarizes quality scores for one category.
type QualityTrend struct {
	Category     artifact.Category `json:"category"`
	Count        int               `json:"count"`
	AverageScore float64           `json:"average_score"`
	MinScore     int               `json:"min_score"`
	MaxScore     int               `json:"max_score"`
	CommonIssues []IssueCount      `json:"common_issues,omitempty"`
}

// Correlation is the temporal-proximity correlation between two
// categories: the share of cross-category artifact pairs whose receive
// times fall within the proximity window.
type Correlation struct {
	Categories [2]artifact.Category `json:"categories"`
	Strength   float64              `json:"strength"`
}

// TemporalPattern is the hourly volume distribution for one category.
type TemporalPattern struct {
	Category artifact.Category `json:"category"`
	ByHour   [24]int           `json:"by_hour"`
	PeakHour int               `json:"peak_hour"`
	Total    int               `json:"total"`
}

// TagCluster groups artifacts sharing an identical tag set.
type TagCluster struct {
	Tags       []string            `json:"tags"`
	Count      int                 `json:"count"`
	Categories []artifact.Category `json:"categories"`
}

// Report is one analytics refresh over the corpus.
type Report struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	TotalArtifacts  int                 `json:"total_artifacts"`
	AverageScore    float64             `json:"average_score"`
	Trends          []QualityTrend      `json:"trends"`
	Correlations    []Correlation       `json:"correlations,omitempty"`
	Patterns        []TemporalPattern   `json:"patterns"`
	Clusters        []TagCluster        `json:"clusters,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
	Excluded        []artifact.Category `json:"excluded,omitempty"`
}

// Engine computes reports by scanning every category store. It holds no
// state of its own.
type Engine struct {
	handlers *store.Registry
	window   time.Duration
	lookback time.Duration
	logger   *logging.Logger
}

// NewEngine creates an engine. window is the proximity window used for
// cross-category correlation; zero falls back to one hour.
func NewEngine(handlers *store.Registry, window time.Duration, logger *logging.Logger) *Engine {
	if window <= 0 {
		window = time.Hour
	}
	return &Engine{
		handlers: handlers,
		window:   window,
		lookback: defaultLookback,
		logger:   logger.Named("analytics"),
	}
}

// Refresh scans the corpus and computes a fresh report. A category whose
// handler fails the scan is logged and excluded; the report still covers
// the rest.
func (e *Engine) Refresh(ctx context.Context) Report {
	report := Report{GeneratedAt: time.Now().UTC()}
	since := report.GeneratedAt.Add(-e.lookback)

	corpus := make(map[artifact.Category][]artifact.Artifact)
	for _, h := range e.handlers.Handlers() {
		results, err := h.Search(ctx, artifact.SearchQuery{Since: since})
		if err != nil {
			e.logger.Warn(ctx, "category excluded from analytics",
				zap.String("category", string(h.Category())),
				zap.Error(err),
			)
			report.Excluded = append(report.Excluded, h.Category())
			continue
		}
		arts := make([]artifact.Artifact, 0, len(results))
		for _, r := range results {
			arts = append(arts, r.Artifact)
		}
		corpus[h.Category()] = arts
	}

	report.Trends = qualityTrends(corpus)
	report.Correlations = e.correlations(corpus)
	report.Patterns = temporalPatterns(corpus)
	report.Clusters = tagClusters(corpus)

	var sum, count int
	for _, t := range report.Trends {
		sum += int(t.AverageScore * float64(t.Count))
		count += t.Count
	}
	report.TotalArtifacts = count
	if count > 0 {
		report.AverageScore = float64(sum) / float64(count)
	}
	report.Recommendations = recommendations(report)

	return report
}

func qualityTrends(corpus map[artifact.Category][]artifact.Artifact) []QualityTrend {
	trends := make([]QualityTrend, 0, len(corpus))
	for cat, arts := range corpus {
		if len(arts) == 0 {
			continue
		}
		t := QualityTrend{Category: cat, Count: len(arts), MinScore: 101, MaxScore: -1}
		issues := map[string]int{}
		sum := 0
		for _, a := range arts {
			score := a.Quality.Score
			sum += score
			if score < t.MinScore {
				t.MinScore = score
			}
			if score > t.MaxScore {
				t.MaxScore = score
			}
			for _, issue := range a.Quality.Issues {
				issues[issue]++
			}
		}
		t.AverageScore = float64(sum) / float64(len(arts))
		t.CommonIssues = topIssues(issues, 5)
		trends = append(trends, t)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Category < trends[j].Category })
	return trends
}

func topIssues(counts map[string]int, n int) []IssueCount {
	out := make([]IssueCount, 0, len(counts))
	for issue, count := range counts {
		out = append(out, IssueCount{Issue: issue, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Issue < out[j].Issue
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// correlations measures, for every category pair, the share of
// cross-pairs received within the proximity window of each other.
func (e *Engine) correlations(corpus map[artifact.Category][]artifact.Artifact) []Correlation {
	cats := make([]artifact.Category, 0, len(corpus))
	for cat := range corpus {
		if len(corpus[cat]) > 0 {
			cats = append(cats, cat)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var out []Correlation
	for i, a := range cats {
		for _, b := range cats[i+1:] {
			strength := proximityShare(corpus[a], corpus[b], e.window)
			if strength > significantCorrelation {
				out = append(out, Correlation{Categories: [2]artifact.Category{a, b}, Strength: strength})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out
}

func proximityShare(a, b []artifact.Artifact, window time.Duration) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	near := 0
	for _, x := range a {
		for _, y := range b {
			d := x.ReceivedAt.Sub(y.ReceivedAt)
			if d < 0 {
				d = -d
			}
			if d < window {
				near++
			}
		}
	}
	return float64(near) / float64(len(a)*len(b))
}

func temporalPatterns(corpus map[artifact.Category][]artifact.Artifact) []TemporalPattern {
	patterns := make([]TemporalPattern, 0, len(corpus))
	for cat, arts := range corpus {
		if len(arts) == 0 {
			continue
		}
		p := TemporalPattern{Category: cat, Total: len(arts)}
		for _, a := range arts {
			p.ByHour[a.ReceivedAt.UTC().Hour()]++
		}
		for hour, count := range p.ByHour {
			if count > p.ByHour[p.PeakHour] {
				p.PeakHour = hour
			}
		}
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Category < patterns[j].Category })
	return patterns
}

// tagClusters groups artifacts carrying an identical tag set; singleton
// groups are noise and dropped.
func tagClusters(corpus map[artifact.Category][]artifact.Artifact) []TagCluster {
	type group struct {
		tags []string
		cats map[artifact.Category]struct{}
		n    int
	}
	groups := map[string]*group{}
	for cat, arts := range corpus {
		for _, a := range arts {
			if len(a.Tags) == 0 {
				continue
			}
			key := strings.Join(a.Tags, "\x00")
			g, ok := groups[key]
			if !ok {
				g = &group{tags: a.Tags, cats: map[artifact.Category]struct{}{}}
				groups[key] = g
			}
			g.n++
			g.cats[cat] = struct{}{}
		}
	}

	var out []TagCluster
	for _, g := range groups {
		if g.n < 2 {
			continue
		}
		cats := make([]artifact.Category, 0, len(g.cats))
		for cat := range g.cats {
			cats = append(cats, cat)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		out = append(out, TagCluster{Tags: g.tags, Count: g.n, Categories: cats})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.Join(out[i].Tags, ",") < strings.Join(out[j].Tags, ",")
	})
	return out
}

// recommendations synthesizes category-level advice from the trends.
func recommendations(report Report) []string {
	var recs []string

	if report.TotalArtifacts > 0 {
		switch {
		case report.AverageScore < 50:
			recs = append(recs, "Critical: overall artifact quality is poor. Review data sources and enrichment.")
		case report.AverageScore < 70:
			recs = append(recs, "Consider improving data enrichment and quality assessment.")
		}
	}

	for _, t := range report.Trends {
		if t.AverageScore < 50 {
			recs = append(recs, fmt.Sprintf("Category %q has poor quality scores. Review its ingestion sources.", t.Category))
		}
		for _, issue := range t.CommonIssues {
			switch issue.Issue {
			case enrich.IssueEmptyData:
				recs = append(recs, fmt.Sprintf("Category %q: many artifacts lack meaningful content.", t.Category))
			case enrich.IssueNoTimestamp:
				recs = append(recs, fmt.Sprintf("Category %q: add timestamp metadata to artifacts.", t.Category))
			case enrich.IssueNoSource:
				recs = append(recs, fmt.Sprintf("Category %q: include source attribution in artifacts.", t.Category))
			}
		}
	}

	return recs
}
