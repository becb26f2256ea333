package enrich

import (
	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// MinContentLength is the threshold below which a present content field
// contributes an insufficient-content issue instead of points.
const MinContentLength = 50

// Checklist weights. Scoring is additive and clamped to [0,100].
const (
	weightNonEmpty  = 20
	weightTimestamp = 15
	weightSource    = 10
	weightContent   = 20
	weightAnalysis  = 15
	weightInsights  = 20
)

// Issue tags produced by the assessor.
const (
	IssueEmptyData           = "empty-data"
	IssueNoTimestamp         = "no-timestamp"
	IssueNoSource            = "no-source"
	IssueInsufficientContent = "insufficient-content"
	IssueNoAnalysis          = "no-analysis"
	IssueNoInsights          = "no-insights"
)

// recommendations maps each issue 1:1 to a fixed remediation string.
// A static lookup, not a rule engine.
var recommendations = map[string]string{
	IssueEmptyData:           "Include meaningful data content in results.",
	IssueNoTimestamp:         "Add timestamp metadata to all results.",
	IssueNoSource:            "Include source attribution in results.",
	IssueInsufficientContent: "Provide more detailed content in results.",
	IssueNoAnalysis:          "Attach analysis or metadata fields to results.",
	IssueNoInsights:          "Add AI-generated insight fields where available.",
}

var (
	timestampFields = []string{"timestamp", "fetched_at", "created_at", "updated_at", "time", "date"}
	sourceFields    = []string{"source", "origin", "url", "link"}
	contentFields   = []string{"content", "text", "body", "message"}
	analysisFields  = []string{"analysis", "metadata", "meta", "stats", "summary"}
	insightFields   = []string{"insight", "insights", "prediction", "predictions", "model"}
)

// Assess scores a payload against the weighted checklist and derives
// remediation recommendations from the issues found.
func Assess(p artifact.Payload) artifact.QualityReport {
	var score int
	var issues []string

	if p.Empty() {
		issues = []string{IssueEmptyData, IssueNoTimestamp, IssueNoSource}
		return artifact.QualityReport{
			Score:           0,
			Issues:          issues,
			Recommendations: recommend(issues),
		}
	}
	score += weightNonEmpty

	if hasAny(p, timestampFields) {
		score += weightTimestamp
	} else {
		issues = append(issues, IssueNoTimestamp)
	}

	if hasAny(p, sourceFields) {
		score += weightSource
	} else {
		issues = append(issues, IssueNoSource)
	}

	// The length check is the one checklist item whose absence adds no
	// issue: only a present-but-short content field is flagged.
	if content, ok := contentOf(p); ok {
		if len(content) >= MinContentLength {
			score += weightContent
		} else {
			issues = append(issues, IssueInsufficientContent)
		}
	}

	if hasAny(p, analysisFields) {
		score += weightAnalysis
	} else {
		issues = append(issues, IssueNoAnalysis)
	}

	if hasAny(p, insightFields) {
		score += weightInsights
	} else {
		issues = append(issues, IssueNoInsights)
	}

	if score > 100 {
		score = 100
	}

	return artifact.QualityReport{
		Score:           score,
		Issues:          issues,
		Recommendations: recommend(issues),
	}
}

// Recommendation returns the fixed remediation string for an issue tag.
func Recommendation(issue string) (string, bool) {
	rec, ok := recommendations[issue]
	return rec, ok
}

func recommend(issues []string) []string {
	recs := make([]string, 0, len(issues))
	for _, issue := range issues {
		if rec, ok := recommendations[issue]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

func hasAny(p artifact.Payload, names []string) bool {
	if p.Fields == nil {
		return false
	}
	for _, name := range names {
		if _, ok := p.Fields[name]; ok {
			return true
		}
	}
	return false
}

// contentOf extracts the textual content of a payload: the first known
// content field holding a string, or the raw text itself.
func contentOf(p artifact.Payload) (string, bool) {
	if p.IsText() {
		if p.Text == "" {
			return "", false
		}
		return p.Text, true
	}
	for _, name := range contentFields {
		if v, ok := p.Fields[name]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
