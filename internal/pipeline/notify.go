package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// EventKind identifies a pipeline notification.
type EventKind string

const (
	// EventArrival fires when a watcher emits a raw arrival.
	EventArrival EventKind = "arrival"
	// EventProcessed fires when an artifact is persisted.
	EventProcessed EventKind = "processed"
	// EventItemFailed fires when processing one item fails. The item's
	// failure never blocks subsequent items.
	EventItemFailed EventKind = "item-failed"
)

// Notification is one entry on the pipeline event feed.
type Notification struct {
	ID         string            `json:"id"`
	Kind       EventKind         `json:"kind"`
	Category   artifact.Category `json:"category"`
	SourcePath string            `json:"source_path,omitempty"`
	ArtifactID string            `json:"artifact_id,omitempty"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}

// Notifier fans pipeline notifications out to subscribers. Delivery is
// best effort: a subscriber that stops draining its channel loses
// events rather than stalling the processor.
type Notifier struct {
	mu     sync.Mutex
	subs   map[string]chan Notification
	closed bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan Notification)}
}

// Subscribe registers a buffered subscription. The returned cancel
// function removes the subscription and closes the channel; it is safe
// to call more than once.
func (n *Notifier) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)
	id := uuid.NewString()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			if _, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(ch)
			}
			n.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers a notification to every subscriber, assigning the
// event id and timestamp.
func (n *Notifier) Publish(note Notification) Notification {
	note.ID = uuid.NewString()
	if note.At.IsZero() {
		note.At = time.Now().UTC()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return note
	}
	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
	return note
}

// Close closes all subscriptions. Further publishes are no-ops.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
