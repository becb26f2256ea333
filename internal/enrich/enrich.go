package enrich

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// ParsePayload interprets raw artifact content. Structured categories are
// parsed as JSON; content that fails to parse (or belongs to a raw-text
// category) is wrapped verbatim as text. Payload format is best effort,
// never a hard precondition.
func ParsePayload(category artifact.Category, content []byte) artifact.Payload {
	if category.RawText() {
		return artifact.Payload{Text: string(content)}
	}

	var obj map[string]any
	if err := json.Unmarshal(content, &obj); err == nil {
		return artifact.Payload{Fields: obj}
	}

	var list []any
	if err := json.Unmarshal(content, &list); err == nil {
		return artifact.Payload{List: list}
	}

	return artifact.Payload{Text: string(content)}
}

// Enrich builds an enriched artifact from raw content: parses the
// payload, fingerprints it, derives tags and a quality report, and
// assigns a fresh id.
func Enrich(category artifact.Category, content []byte, sourcePath string, receivedAt time.Time) artifact.Artifact {
	payload := ParsePayload(category, content)

	return artifact.Artifact{
		ID:          NewID(receivedAt),
		Category:    category,
		Payload:     payload,
		ContentHash: Fingerprint(payload),
		Tags:        Tags(payload),
		Quality:     Assess(payload),
		ReceivedAt:  receivedAt,
		SourcePath:  sourcePath,
	}
}
