// Package artifact defines the data model shared by the resultd pipeline:
// raw arrivals, enriched artifacts, quality reports, and the closed set of
// result categories.
package artifact

import (
	"encoding/json"
	"time"
)

// Category classifies an artifact and selects its storage subtree and
// handler. The set is closed at process start: adding a category means
// adding a handler implementation, not editing configuration.
type Category string

const (
	CategoryScraping    Category = "scraping"
	CategoryCoding      Category = "coding"
	CategoryAnalytics   Category = "analytics"
	CategoryLogs        Category = "logs"
	CategoryMetrics     Category = "metrics"
	CategoryEvaluation  Category = "evaluation"
	CategoryCredentials Category = "credentials"
	CategoryAIInsights  Category = "ai-insights"
)

// Categories returns all known categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryScraping,
		CategoryCoding,
		CategoryAnalytics,
		CategoryLogs,
		CategoryMetrics,
		CategoryEvaluation,
		CategoryCredentials,
		CategoryAIInsights,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryScraping, CategoryCoding, CategoryAnalytics, CategoryLogs,
		CategoryMetrics, CategoryEvaluation, CategoryCredentials, CategoryAIInsights:
		return true
	}
	return false
}

// RawText reports whether the category stores artifacts as raw text
// (.log extension) rather than structured JSON.
func (c Category) RawText() bool {
	return c == CategoryLogs || c == CategoryCredentials
}

// Ext returns the file extension used under the category subtree.
func (c Category) Ext() string {
	if c.RawText() {
		return ".log"
	}
	return ".json"
}

// RawArrival is the event a source watcher emits when a completed write
// is observed under a watched root. It is owned by the ingestion queue
// until dequeued and is never mutated after creation.
type RawArrival struct {
	Category   Category  `json:"category"`
	SourcePath string    `json:"source_path"`
	DetectedAt time.Time `json:"detected_at"`
	ByteSize   uint64    `json:"byte_size"`
}

// Payload is the parsed content of an artifact. Exactly one of Fields or
// Text is set: Fields when the content parsed as a JSON object, List when
// it parsed as a JSON array, Text otherwise. Parsing is best effort;
// content that fails to parse is carried verbatim as Text.
type Payload struct {
	Fields map[string]any `json:"fields,omitempty"`
	List   []any          `json:"list,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// IsText reports whether the payload carries unstructured text.
func (p Payload) IsText() bool { return p.Fields == nil && p.List == nil }

// Empty reports whether the payload carries no content at all.
func (p Payload) Empty() bool {
	return len(p.Fields) == 0 && len(p.List) == 0 && p.Text == ""
}

// Canonical returns the canonical serialization of the payload, the input
// to content fingerprinting. Object keys are sorted by encoding/json.
func (p Payload) Canonical() []byte {
	if p.Fields != nil {
		b, err := json.Marshal(p.Fields)
		if err == nil {
			return b
		}
	}
	if p.List != nil {
		b, err := json.Marshal(p.List)
		if err == nil {
			return b
		}
	}
	return []byte(p.Text)
}

// QualityReport scores an artifact from structural heuristics.
// Recommendations are derived deterministically from Issues.
type QualityReport struct {
	Score           int      `json:"score"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Artifact is an enriched, persisted result. Immutable once persisted.
type Artifact struct {
	ID           string        `json:"id"`
	Category     Category      `json:"category"`
	Payload      Payload       `json:"payload"`
	ContentHash  string        `json:"content_hash"`
	Tags         []string      `json:"tags,omitempty"`
	Quality      QualityReport `json:"quality"`
	ReceivedAt   time.Time     `json:"received_at"`
	SourcePath   string        `json:"source_path,omitempty"`
	Correlations []string      `json:"correlations,omitempty"`
}

// CategoryStatistics reflects the on-disk state of one category subtree.
type CategoryStatistics struct {
	Category       Category `json:"category"`
	TotalArtifacts uint64   `json:"total_artifacts"`
	StorageBytes   uint64   `json:"storage_bytes"`
}

// QualityBuckets counts quality scores in fixed ranges:
// 0-20, 21-40, 41-60, 61-80, 81-100.
type QualityBuckets [5]uint64

// Bucket returns the index of the bucket a score falls in.
// Scores outside [0,100] are clamped.
func Bucket(score int) int {
	switch {
	case score <= 20:
		return 0
	case score <= 40:
		return 1
	case score <= 60:
		return 2
	case score <= 80:
		return 3
	default:
		return 4
	}
}

// SystemStatistics aggregates per-category statistics. Derived, never
// independently mutated; always recomputable from the category stores.
type SystemStatistics struct {
	TotalArtifacts uint64                          `json:"total_artifacts"`
	StorageBytes   uint64                          `json:"storage_bytes"`
	ByCategory     map[Category]CategoryStatistics `json:"by_category"`
	Quality        QualityBuckets                  `json:"quality_distribution"`
	// Excluded lists categories whose handler failed to respond and
	// whose contribution is therefore missing from the totals.
	Excluded []Category `json:"excluded,omitempty"`
}

// SearchQuery filters persisted artifacts within one category.
// Zero-value fields are not applied.
type SearchQuery struct {
	Text       string    `json:"text,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Until      time.Time `json:"until,omitempty"`
	MinQuality int       `json:"min_quality,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// SearchResult pairs a matching artifact with its storage path.
type SearchResult struct {
	Artifact Artifact `json:"artifact"`
	Path     string   `json:"path"`
}
