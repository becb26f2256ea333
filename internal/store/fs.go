package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/enrich"
	"github.com/fyrsmithlabs/resultd/internal/logging"
)

// archiveDir is the sibling directory under a category root that holds
// artifacts moved out of the live subtree by the cleanup pass.
const archiveDir = "archive"

// fsHandler stores one category's artifacts under a date-partitioned
// filesystem subtree. A mutex serializes persist and cleanup so the
// single-writer-per-category invariant holds without distributed locks.
type fsHandler struct {
	category artifact.Category
	root     string
	mu       sync.Mutex
	logger   *logging.Logger
}

func newFSHandler(cat artifact.Category, root string, logger *logging.Logger) *fsHandler {
	return &fsHandler{
		category: cat,
		root:     root,
		logger:   logger.Named("store").With(zap.String("category", string(cat))),
	}
}

func (h *fsHandler) Category() artifact.Category { return h.category }

// artifactPath derives the unique storage path for an artifact from its
// category and receive time.
func (h *fsHandler) artifactPath(art artifact.Artifact) string {
	t := art.ReceivedAt.UTC()
	return filepath.Join(h.root,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
		art.ID+h.category.Ext(),
	)
}

func (h *fsHandler) Persist(ctx context.Context, art artifact.Artifact) error {
	if art.Category != h.category {
		return fmt.Errorf("handler %q cannot persist artifact of category %q", h.category, art.Category)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	path := h.artifactPath(art)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &artifact.TransientIOError{Path: path, Err: err}
	}

	var content []byte
	if h.category.RawText() {
		content = []byte(art.Payload.Text)
	} else {
		var err error
		content, err = json.MarshalIndent(art, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding artifact %s: %w", art.ID, err)
		}
	}

	// O_EXCL makes the existence check and the create atomic: an id
	// collision surfaces as an error instead of a silent overwrite.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", artifact.ErrPersistConflict, path)
		}
		return &artifact.TransientIOError{Path: path, Err: err}
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return &artifact.TransientIOError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &artifact.TransientIOError{Path: path, Err: err}
	}

	h.logger.Debug(ctx, "artifact persisted",
		zap.String("id", art.ID),
		zap.String("path", path),
		zap.Int("bytes", len(content)),
	)
	return nil
}

func (h *fsHandler) Statistics(ctx context.Context) (artifact.CategoryStatistics, error) {
	stats := artifact.CategoryStatistics{Category: h.category}

	err := h.walkLive(func(path string, info fs.FileInfo) error {
		stats.TotalArtifacts++
		stats.StorageBytes += uint64(info.Size())
		return nil
	})
	if err != nil {
		return artifact.CategoryStatistics{}, fmt.Errorf("%w: %s: %v", artifact.ErrHandlerUnavailable, h.category, err)
	}
	return stats, nil
}

// walkLive visits every artifact file in the live (non-archived) subtree
// in lexical order, which for the date layout is chronological order.
func (h *fsHandler) walkLive(fn func(path string, info fs.FileInfo) error) error {
	return filepath.WalkDir(h.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == h.root && errors.Is(err, fs.ErrNotExist) {
				// Nothing persisted yet.
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == archiveDir && filepath.Dir(path) == h.root {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".log" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, info)
	})
}

// loadArtifact reconstructs an artifact from its storage path.
//
// Structured categories round-trip through JSON. Raw-text categories
// store only the payload; the derived metadata is recomputed on load,
// which is sound because enrichment is a pure function of the payload.
func (h *fsHandler) loadArtifact(path string, info fs.FileInfo) (artifact.Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return artifact.Artifact{}, &artifact.TransientIOError{Path: path, Err: err}
	}

	if h.category.RawText() {
		payload := artifact.Payload{Text: string(content)}
		return artifact.Artifact{
			ID:          strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Category:    h.category,
			Payload:     payload,
			ContentHash: enrich.Fingerprint(payload),
			Tags:        enrich.Tags(payload),
			Quality:     enrich.Assess(payload),
			ReceivedAt:  info.ModTime().UTC(),
		}, nil
	}

	var art artifact.Artifact
	if err := json.Unmarshal(content, &art); err != nil {
		return artifact.Artifact{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return art, nil
}

func (h *fsHandler) Search(ctx context.Context, q artifact.SearchQuery) ([]artifact.SearchResult, error) {
	var results []artifact.SearchResult

	err := h.walkLive(func(path string, info fs.FileInfo) error {
		if q.Limit > 0 && len(results) >= q.Limit {
			return filepath.SkipAll
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		art, err := h.loadArtifact(path, info)
		if err != nil {
			// A single unreadable file must not fail the whole search.
			h.logger.Warn(ctx, "skipping unreadable artifact", zap.String("path", path), zap.Error(err))
			return nil
		}
		if matches(art, q) {
			results = append(results, artifact.SearchResult{Artifact: art, Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", artifact.ErrHandlerUnavailable, h.category, err)
	}
	return results, nil
}

// matches applies a search query to one artifact. Zero-value query
// fields are not applied.
func matches(art artifact.Artifact, q artifact.SearchQuery) bool {
	if !q.Since.IsZero() && art.ReceivedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && art.ReceivedAt.After(q.Until) {
		return false
	}
	if q.MinQuality > 0 && art.Quality.Score < q.MinQuality {
		return false
	}
	for _, want := range q.Tags {
		found := false
		for _, tag := range art.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Text != "" {
		haystack := strings.ToLower(string(art.Payload.Canonical()))
		if !strings.Contains(haystack, strings.ToLower(q.Text)) {
			return false
		}
	}
	return true
}

// liveDayDate parses the <YYYY>/<MM>/<DD> portion of an artifact path.
func (h *fsHandler) liveDayDate(path string) (time.Time, bool) {
	rel, err := filepath.Rel(h.root, path)
	if err != nil {
		return time.Time{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006/01/02", parts[0]+"/"+parts[1]+"/"+parts[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
