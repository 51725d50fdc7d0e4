package client

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/sse"
)

// EventKind classifies consumer events.
type EventKind int

const (
	// EventDelta carries one message frame.
	EventDelta EventKind = iota
	// EventDone is the successful terminal.
	EventDone
	// EventError is the failure terminal (in-band or network).
	EventError
	// EventTimeout is the terminal raised when the overall ceiling elapses.
	EventTimeout
)

// StreamEvent is delivered to the caller's handler, synchronously and in
// stream order. Exactly one terminal event (done, error, or timeout) is
// raised per stream, and nothing after it.
type StreamEvent struct {
	Kind           EventKind
	Frame          models.StreamFrame // set for EventDelta
	ConversationID string             // set for EventDone
	Err            error              // set for EventError / EventTimeout
}

// DefaultStreamTimeout is the overall stream ceiling when none is given.
const DefaultStreamTimeout = 30 * time.Second

// ConsumeOptions tunes ConsumeStream.
type ConsumeOptions struct {
	// Timeout bounds the whole stream, not individual reads. Zero means
	// DefaultStreamTimeout.
	Timeout time.Duration
	// OnEvent receives every event. Nil is allowed.
	OnEvent func(StreamEvent)
}

// ConsumeStream decodes a stream body until a terminal outcome and returns
// the conversation id from the done frame. The body is closed on every exit
// path. On timeout the body is closed from a timer goroutine, which unblocks
// the pending read.
func ConsumeStream(body io.ReadCloser, opts ConsumeOptions) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	emit := opts.OnEvent
	if emit == nil {
		emit = func(StreamEvent) {}
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		body.Close()
	})
	defer timer.Stop()
	defer body.Close()

	r := sse.NewReader(body)
	convID := ""
	for {
		ev, err := r.Next()
		if err != nil {
			if timedOut.Load() {
				emit(StreamEvent{Kind: EventTimeout, Err: ErrTimeout})
				return convID, ErrTimeout
			}
			if err == io.EOF {
				// stream ended without done or sentinel
				emit(StreamEvent{Kind: EventError, Err: ErrNetwork})
				return convID, ErrNetwork
			}
			werr := fmt.Errorf("%w: %v", ErrNetwork, err)
			emit(StreamEvent{Kind: EventError, Err: werr})
			return convID, werr
		}
		switch ev.Kind {
		case sse.EventMessage:
			if ev.Frame.ConversationID != "" {
				convID = ev.Frame.ConversationID
			}
			emit(StreamEvent{Kind: EventDelta, Frame: ev.Frame})
		case sse.EventDone:
			if ev.Done.ConversationID != "" {
				convID = ev.Done.ConversationID
			}
			emit(StreamEvent{Kind: EventDone, ConversationID: convID})
			return convID, nil
		case sse.EventError:
			werr := fmt.Errorf("%w: %s", ErrUpstream, ev.Error)
			emit(StreamEvent{Kind: EventError, Err: werr})
			return convID, werr
		case sse.EventSentinel:
			// a sentinel with no preceding done or error record breaks
			// the framing contract
			emit(StreamEvent{Kind: EventError, Err: ErrParse})
			return convID, ErrParse
		}
	}
}
