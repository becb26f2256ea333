package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// CleanupPolicy controls one cleanup pass over a category.
type CleanupPolicy struct {
	// RetentionDays is the age past which live artifacts are archived.
	// Zero or negative disables archival.
	RetentionDays int
	// Compress gzips artifacts as they are archived.
	Compress bool
	// Now anchors the retention cutoff. Zero means time.Now.
	Now time.Time
}

// CleanupResult summarizes one cleanup pass.
type CleanupResult struct {
	DuplicatesRemoved int
	Archived          int
	BytesReclaimed    uint64
}

// Cleanup removes exact duplicates (same content hash within the
// category) and archives artifacts older than the retention window into
// <categoryRoot>/archive/<YYYY>/<MM>/. It holds the handler lock for the
// duration, so it never interferes with an in-flight Persist: persist
// calls for new artifacts simply queue behind it.
func (h *fsHandler) Cleanup(ctx context.Context, policy CleanupPolicy) (CleanupResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := policy.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	type entry struct {
		path string
		info fs.FileInfo
		day  time.Time
		hash string
	}

	var entries []entry
	err := h.walkLive(func(path string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		day, ok := h.liveDayDate(path)
		if !ok {
			return nil
		}
		art, err := h.loadArtifact(path, info)
		if err != nil {
			h.logger.Warn(ctx, "cleanup skipping unreadable artifact", zap.String("path", path), zap.Error(err))
			return nil
		}
		entries = append(entries, entry{path: path, info: info, day: day, hash: art.ContentHash})
		return nil
	})
	if err != nil {
		return CleanupResult{}, fmt.Errorf("cleanup scan for %s: %w", h.category, err)
	}

	var result CleanupResult

	// Duplicate removal. The walk is chronological, so the earliest copy
	// of each content hash survives.
	seen := make(map[string]struct{}, len(entries))
	kept := entries[:0]
	for _, e := range entries {
		if _, dup := seen[e.hash]; dup {
			if err := os.Remove(e.path); err != nil {
				h.logger.Warn(ctx, "failed to remove duplicate", zap.String("path", e.path), zap.Error(err))
				kept = append(kept, e)
				continue
			}
			result.DuplicatesRemoved++
			result.BytesReclaimed += uint64(e.info.Size())
			continue
		}
		seen[e.hash] = struct{}{}
		kept = append(kept, e)
	}

	// Archival.
	if policy.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.RetentionDays)
		for _, e := range kept {
			if !e.day.Before(cutoff) {
				continue
			}
			if err := h.archive(e.path, e.day, policy.Compress); err != nil {
				h.logger.Warn(ctx, "failed to archive artifact", zap.String("path", e.path), zap.Error(err))
				continue
			}
			result.Archived++
			if policy.Compress {
				result.BytesReclaimed += uint64(e.info.Size())
			}
		}
	}

	h.pruneEmptyDayDirs()

	h.logger.Info(ctx, "cleanup pass finished",
		zap.Int("duplicates_removed", result.DuplicatesRemoved),
		zap.Int("archived", result.Archived),
		zap.Uint64("bytes_reclaimed", result.BytesReclaimed),
	)
	return result, nil
}

// archive moves one artifact out of the live subtree into
// archive/<YYYY>/<MM>/, optionally gzip-compressed.
func (h *fsHandler) archive(path string, day time.Time, compress bool) error {
	destDir := filepath.Join(h.root, archiveDir,
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", day.Month()),
	)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	name := filepath.Base(path)
	if !compress {
		return os.Rename(path, filepath.Join(destDir, name))
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(destDir, name+".gz"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// pruneEmptyDayDirs removes date directories emptied by archival and
// dedup. Best effort; a directory that gained a file since the scan is
// simply left in place.
func (h *fsHandler) pruneEmptyDayDirs() {
	var dirs []string
	_ = filepath.WalkDir(h.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if d.Name() == archiveDir && filepath.Dir(path) == h.root {
				return filepath.SkipDir
			}
			if path != h.root {
				dirs = append(dirs, path)
			}
		}
		return nil
	})
	// Deepest first, so an emptied day empties its month and year too.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // fails while non-empty, which is fine
	}
}
