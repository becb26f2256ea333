// Package enrich derives metadata from raw artifact content: a content
// fingerprint for deduplication, descriptive tags, and a quality report.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// Fingerprint computes a SHA-256 digest of the payload's canonical
// serialization. It is a pure function of the payload: equal payloads
// always produce equal fingerprints, which the cleanup pass relies on
// for duplicate removal.
func Fingerprint(p artifact.Payload) string {
	sum := sha256.Sum256(p.Canonical())
	return hex.EncodeToString(sum[:])
}
