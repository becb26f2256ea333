package enrich

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// tagRule maps a structural predicate over the payload to a tag. The
// rule table is data, not control flow: extending tagging means adding
// a row here, never touching the processor.
type tagRule struct {
	tag   string
	match func(p artifact.Payload) bool
}

var tagRules = []tagRule{
	{"web-content", hasAnyField("url", "link", "href")},
	{"code-analysis", hasAnyField("code", "language", "lint", "diff")},
	{"scored", hasAnyField("score", "quality", "confidence")},
	{"timestamped", hasAnyField("timestamp", "fetched_at", "created_at", "time")},
	{"ai-generated", hasAnyField("insight", "insights", "prediction", "model")},
	{"error-report", hasAnyField("error", "errors", "stack_trace")},
	{"list", func(p artifact.Payload) bool { return p.List != nil }},
	{"text", func(p artifact.Payload) bool { return p.IsText() && p.Text != "" }},
	{"multiline", func(p artifact.Payload) bool {
		return p.IsText() && strings.Contains(p.Text, "\n")
	}},
}

func hasAnyField(names ...string) func(artifact.Payload) bool {
	return func(p artifact.Payload) bool {
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
}

// Tags derives the descriptive tag set for a payload. The result is
// sorted and duplicate-free; it may be empty.
func Tags(p artifact.Payload) []string {
	var tags []string
	for _, rule := range tagRules {
		if rule.match(p) {
			tags = append(tags, rule.tag)
		}
	}
	sort.Strings(tags)
	return tags
}
