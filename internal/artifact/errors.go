package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistConflict indicates the write target for an artifact id
	// already exists. This signals an id-generation or fingerprinting bug
	// and is fatal for the item, never silently resolved by overwriting.
	ErrPersistConflict = errors.New("persist target already exists")

	// ErrUnknownCategory indicates a category outside the closed set.
	// At configuration load time this aborts startup.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrHandlerUnavailable indicates a category handler failed during
	// statistics or search. Aggregation degrades gracefully by excluding
	// the category instead of failing.
	ErrHandlerUnavailable = errors.New("category handler unavailable")

	// ErrQueueClosed indicates an enqueue after pipeline shutdown.
	ErrQueueClosed = errors.New("ingestion queue closed")
)

// TransientIOError wraps a filesystem error that is safe to retry for
// the specific item (file temporarily unreadable or locked).
type TransientIOError struct {
	Path string
	Err  error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io failure on %s: %v", e.Path, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}
