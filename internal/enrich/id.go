package enrich

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGen issues process-unique, time-ordered artifact ids. ULIDs sort
// lexically by creation time, which keeps directory listings under the
// date-partitioned layout in arrival order.
type idGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var ids = &idGen{entropy: ulid.Monotonic(rand.Reader, 0)}

// NewID returns a new artifact id for the given receive time.
func NewID(at time.Time) string {
	ids.mu.Lock()
	defer ids.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), ids.entropy).String()
}
