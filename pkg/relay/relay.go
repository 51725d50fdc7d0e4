// Package relay executes chat turns: it resolves the conversation, persists
// the user turn, bridges a completion backend onto the wire codec, and
// persists the assistant turn when the stream completes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatrelay/pkg/llm"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/sse"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/utils"
)

// ChatRequest is the body of POST /chat/stream and POST /chat.
type ChatRequest struct {
	Messages       []models.Turn `json:"messages"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// ErrEmptyMessages rejects requests with no turns to complete.
var ErrEmptyMessages = errors.New("messages must not be empty")

// Relay routes chat turns to the first available backend. Fallback must
// always be available; Live may be nil or unconfigured.
type Relay struct {
	Store    store.Store
	Live     llm.Completer
	Fallback llm.Completer
}

// New assembles a relay.
func New(st store.Store, live, fallback llm.Completer) *Relay {
	return &Relay{Store: st, Live: live, Fallback: fallback}
}

// Mode reports which backend the next request would use.
func (r *Relay) Mode() string {
	if r.Live != nil && r.Live.Available() {
		return "live"
	}
	return "fallback"
}

func (r *Relay) pick() (llm.Completer, string) {
	if r.Live != nil && r.Live.Available() {
		return r.Live, "live"
	}
	return r.Fallback, "fallback"
}

// Prepare resolves the conversation and persists the trailing user turn. It
// runs before any frame is written, so every failure here surfaces as a
// synchronous error and a plain HTTP error response.
//
// A request carrying an unknown conversation id adopts it: the thread is
// created under the caller-supplied id so client-generated ids survive a
// server restart.
func (r *Relay) Prepare(req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrEmptyMessages
	}

	convID := req.ConversationID
	if convID == "" {
		convID = utils.GenThreadID()
	}
	thread, err := r.Store.GetThread(convID)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		thread = models.Thread{ID: convID, Title: models.DefaultThreadTitle, CreatedAt: now, UpdatedAt: now}
		if err := r.Store.CreateThread(thread); err != nil {
			return "", fmt.Errorf("create thread: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != models.RoleUser {
		return convID, nil
	}
	// A client retry resends the same trailing turn; comparing only the
	// stored tail keeps the append idempotent without collapsing a user who
	// legitimately repeats an earlier question.
	if n := len(thread.Messages); n > 0 {
		tail := thread.Messages[n-1]
		if tail.Role == models.RoleUser && tail.Content == last.Content {
			return convID, nil
		}
	}
	msg := models.Message{
		ID:        utils.GenMessageID(),
		Role:      models.RoleUser,
		Content:   last.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Store.AppendMessage(convID, msg); err != nil {
		return "", fmt.Errorf("persist user turn: %w", err)
	}
	return convID, nil
}

// Stream runs one streamed chat turn onto w. Prepare must have succeeded
// already; from here every failure is in-band (error frame + sentinel), never
// an HTTP status, because the 200 and headers are already out.
func (r *Relay) Stream(ctx context.Context, w http.ResponseWriter, convID string, turns []models.Turn) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		logger.Error("stream_writer_unsupported", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	backend, mode := r.pick()
	ch, err := backend.StreamCompletion(ctx, turns)
	if err != nil && mode == "live" {
		logger.Warn("live_backend_unreachable", "error", err)
		backend, mode = r.Fallback, "fallback"
		ch, err = backend.StreamCompletion(ctx, turns)
	}
	if err != nil {
		logger.Error("stream_start_failed", "error", err)
		r.finishError(sw, "failed to start completion")
		return
	}
	telemetry.StreamsStarted.WithLabelValues(mode).Inc()
	logger.Info("stream_started", "conversation", convID, "backend", mode)

	msgID := utils.GenMessageID()
	var acc strings.Builder
	wroteAny := false

	for {
		select {
		case <-ctx.Done():
			logger.Info("stream_client_gone", "conversation", convID, "partial_len", acc.Len())
			return
		case d, ok := <-ch:
			if !ok {
				// backend closed without a Done marker
				r.finishOK(sw, convID, msgID, acc.String())
				return
			}
			if d.Err != nil {
				if !wroteAny && mode == "live" {
					// nothing visible yet, retry the whole turn on fallback
					logger.Warn("live_backend_failed_prestream", "error", d.Err)
					fch, ferr := r.Fallback.StreamCompletion(ctx, turns)
					if ferr == nil {
						backend, mode, ch = r.Fallback, "fallback", fch
						telemetry.StreamsStarted.WithLabelValues(mode).Inc()
						continue
					}
				}
				logger.Error("stream_backend_error", "conversation", convID,
					"error", d.Err, "partial_len", acc.Len())
				r.finishError(sw, "completion failed")
				return
			}
			if d.Content != "" {
				acc.WriteString(d.Content)
				frame := models.StreamFrame{
					ID:             msgID,
					Content:        d.Content,
					Role:           models.RoleAssistant,
					ConversationID: convID,
				}
				if err := sw.WriteMessage(frame); err != nil {
					logger.Warn("stream_write_failed", "conversation", convID, "error", err)
					return
				}
				telemetry.FramesWritten.Inc()
				wroteAny = true
			}
			if d.Done {
				r.finishOK(sw, convID, msgID, acc.String())
				return
			}
		}
	}
}

// finishOK persists the assistant turn and emits the closing frame sequence.
func (r *Relay) finishOK(sw *sse.Writer, convID, msgID, content string) {
	msg := models.Message{
		ID:        msgID,
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Store.AppendMessage(convID, msg); err != nil {
		logger.Error("persist_assistant_failed", "conversation", convID, "error", err)
		r.finishError(sw, "failed to persist response")
		return
	}
	final := models.StreamFrame{
		ID:             msgID,
		Role:           models.RoleAssistant,
		ConversationID: convID,
		IsDone:         true,
	}
	if err := sw.WriteMessage(final); err != nil {
		logger.Warn("stream_write_failed", "conversation", convID, "error", err)
		return
	}
	if err := sw.WriteDone(convID); err != nil {
		logger.Warn("stream_write_failed", "conversation", convID, "error", err)
		return
	}
	_ = sw.WriteSentinel()
	telemetry.FramesWritten.Add(2)
	telemetry.StreamsCompleted.Inc()
	logger.Info("stream_completed", "conversation", convID, "chars", len(content))
}

// finishError emits the in-band error frame followed by the sentinel. Partial
// assistant text is never persisted.
func (r *Relay) finishError(sw *sse.Writer, cause string) {
	if err := sw.WriteError(cause); err != nil {
		logger.Warn("stream_write_failed", "error", err)
		return
	}
	_ = sw.WriteSentinel()
	telemetry.StreamsFailed.Inc()
}

// Complete runs one non-streaming chat turn and returns the assistant
// message. The same backend selection and persistence rules apply.
func (r *Relay) Complete(ctx context.Context, convID string, turns []models.Turn) (models.Message, error) {
	backend, mode := r.pick()
	text, err := r.collect(ctx, backend, turns)
	if err != nil && mode == "live" {
		logger.Warn("live_backend_failed", "error", err)
		text, err = r.collect(ctx, r.Fallback, turns)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("completion: %w", err)
	}
	msg := models.Message{
		ID:        utils.GenMessageID(),
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Store.AppendMessage(convID, msg); err != nil {
		return models.Message{}, fmt.Errorf("persist assistant turn: %w", err)
	}
	return msg, nil
}

func (r *Relay) collect(ctx context.Context, backend llm.Completer, turns []models.Turn) (string, error) {
	ch, err := backend.StreamCompletion(ctx, turns)
	if err != nil {
		return "", err
	}
	return llm.Collect(ch)
}
