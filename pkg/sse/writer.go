// Package sse implements the newline-delimited event framing used on the
// chat stream: `data: <JSON>` records, optionally preceded by an
// `event: <kind>` line, separated by blank lines, terminated by the literal
// `data: [DONE]` sentinel.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"chatrelay/pkg/models"
)

// Sentinel is the terminal token. It is always the final record of a
// stream, even after an error event.
const Sentinel = "[DONE]"

// Writer frames events onto an http response, flushing after each record so
// deltas reach the client immediately.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for event streaming and returns a frame writer. It
// fails when the ResponseWriter cannot flush, since buffered streaming
// would defeat incremental delivery.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, f: f}, nil
}

func (s *Writer) writeRecord(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// WriteMessage emits a `message` frame carrying one delta.
func (s *Writer) WriteMessage(frame models.StreamFrame) error {
	return s.writeRecord("", frame)
}

// WriteError emits an in-band `error` frame with a human-readable cause.
func (s *Writer) WriteError(cause string) error {
	return s.writeRecord("error", models.ErrorFrame{Error: cause})
}

// WriteDone emits the `done` frame carrying the conversation id.
func (s *Writer) WriteDone(conversationID string) error {
	return s.writeRecord("done", models.DoneFrame{ConversationID: conversationID})
}

// WriteSentinel emits the terminal token. No record may follow it.
func (s *Writer) WriteSentinel() error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", Sentinel); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
