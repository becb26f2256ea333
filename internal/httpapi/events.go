package httpapi

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/resultd/internal/pipeline"
)

// eventEncoder writes pipeline notifications in server-sent-event
// framing: an event line carrying the kind and a data line carrying the
// JSON notification.
type eventEncoder struct {
	w io.Writer
}

func newEventEncoder(w io.Writer) *eventEncoder {
	return &eventEncoder{w: w}
}

func (e *eventEncoder) write(note pipeline.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", note.Kind, data)
	return err
}
