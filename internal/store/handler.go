// Package store implements the category-partitioned artifact store. Each
// category owns a subtree under the storage root and is served by exactly
// one handler; all writes for a category flow through its handler, which
// serializes persist and cleanup internally.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/logging"
)

// Handler is the per-category storage contract. Implementations differ
// only in persisted shape; behavior is otherwise identical across
// categories.
type Handler interface {
	// Category returns the category this handler owns.
	Category() artifact.Category

	// Persist writes the artifact under the category subtree at
	// <root>/<category>/<YYYY>/<MM>/<DD>/<id>.<ext>, creating intermediate
	// directories as needed. An existing write target is a
	// artifact.ErrPersistConflict, never a silent overwrite.
	Persist(ctx context.Context, art artifact.Artifact) error

	// Search filters persisted artifacts. An empty result is a valid
	// "no matches" outcome, not an error.
	Search(ctx context.Context, q artifact.SearchQuery) ([]artifact.SearchResult, error)

	// Statistics reflects the true on-disk state at call time.
	Statistics(ctx context.Context) (artifact.CategoryStatistics, error)

	// Cleanup archives artifacts older than the retention window and
	// removes exact duplicates (same content hash). Safe to run
	// concurrently with ongoing ingestion.
	Cleanup(ctx context.Context, policy CleanupPolicy) (CleanupResult, error)
}

// Registry resolves categories to their handlers. The set is closed at
// construction; adding a category is a deliberate code change, not a
// runtime plugin.
type Registry struct {
	handlers map[artifact.Category]Handler
}

// NewRegistry builds one filesystem handler per known category rooted
// under root.
func NewRegistry(root string, logger *logging.Logger) *Registry {
	handlers := make(map[artifact.Category]Handler, len(artifact.Categories()))
	for _, cat := range artifact.Categories() {
		handlers[cat] = newFSHandler(cat, filepath.Join(root, string(cat)), logger)
	}
	return &Registry{handlers: handlers}
}

// Resolve returns the handler for a category. Every arrival produced by
// the watcher registry draws from the same closed set, so a miss is a
// programming error, not a runtime condition to recover from.
func (r *Registry) Resolve(cat artifact.Category) Handler {
	h, ok := r.handlers[cat]
	if !ok {
		panic(fmt.Sprintf("store: no handler for category %q", cat))
	}
	return h
}

// Handlers returns all handlers in the stable category order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.handlers))
	for _, cat := range artifact.Categories() {
		if h, ok := r.handlers[cat]; ok {
			out = append(out, h)
		}
	}
	return out
}
