package sse

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

// EventKind classifies a decoded record.
type EventKind int

const (
	// EventMessage carries a StreamFrame delta.
	EventMessage EventKind = iota
	// EventDone is the `done` record closing a successful stream.
	EventDone
	// EventError is an in-band error record.
	EventError
	// EventSentinel is the terminal [DONE] token.
	EventSentinel
)

// Event is one decoded wire record.
type Event struct {
	Kind  EventKind
	Frame models.StreamFrame // valid when Kind == EventMessage
	Done  models.DoneFrame   // valid when Kind == EventDone
	Error string             // valid when Kind == EventError
}

// Reader incrementally decodes framed events from a byte stream. Reads may
// split a line or a UTF-8 codepoint at any byte boundary; the reader
// buffers raw bytes and only interprets complete lines, so both cases are
// handled by construction. Malformed lines are skipped with a warning, not
// fatal.
type Reader struct {
	r       io.Reader
	pending []byte
	buf     []byte
	// event field of the record currently being assembled
	curEvent string
	eof      bool
}

// NewReader wraps r. The reader does not close r; ownership of the
// underlying stream stays with the caller.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 4096)}
}

// Next returns the next decoded event, in stream order. It returns io.EOF
// when the underlying stream ends without a further event, and propagates
// read errors otherwise.
func (d *Reader) Next() (Event, error) {
	for {
		// drain any complete buffered lines first
		for {
			idx := bytes.IndexByte(d.pending, '\n')
			if idx < 0 {
				break
			}
			line := string(d.pending[:idx])
			d.pending = d.pending[idx+1:]
			if ev, ok := d.processLine(line); ok {
				return ev, nil
			}
		}
		if d.eof {
			return Event{}, io.EOF
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending = append(d.pending, d.buf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				// a final line without trailing newline is still a line
				if len(d.pending) > 0 {
					d.pending = append(d.pending, '\n')
				}
				d.eof = true
				continue
			}
			return Event{}, err
		}
	}
}

// processLine interprets one complete line. It returns ok=false for lines
// that do not produce an event (separators, event: prefixes, garbage).
func (d *Reader) processLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		// blank separator ends the current record
		d.curEvent = ""
		return Event{}, false
	}
	if strings.HasPrefix(line, "event: ") {
		d.curEvent = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		return Event{}, false
	}
	if !strings.HasPrefix(line, "data: ") {
		logger.Debug("stream_line_skipped", "line", line)
		return Event{}, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

	if data == Sentinel {
		return Event{Kind: EventSentinel}, true
	}

	switch d.curEvent {
	case "error":
		var ef models.ErrorFrame
		if err := json.Unmarshal([]byte(data), &ef); err != nil || ef.Error == "" {
			ef.Error = "stream error"
		}
		return Event{Kind: EventError, Error: ef.Error}, true
	case "done":
		var df models.DoneFrame
		if err := json.Unmarshal([]byte(data), &df); err != nil {
			logger.Warn("done_frame_unparseable", "error", err)
			return Event{Kind: EventDone}, true
		}
		return Event{Kind: EventDone, Done: df}, true
	default:
		var frame models.StreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			logger.Warn("message_frame_unparseable", "error", err)
			return Event{}, false
		}
		return Event{Kind: EventMessage, Frame: frame}, true
	}
}
