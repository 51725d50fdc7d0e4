package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/relay"
	"chatrelay/pkg/utils"
)

// Chat serves the completion endpoints.
type Chat struct {
	Relay *relay.Relay
}

// RegisterChat registers the streaming and single-shot chat routes.
func RegisterChat(r *mux.Router, rl *relay.Relay) {
	h := &Chat{Relay: rl}
	r.HandleFunc("/chat/stream", h.stream).Methods(http.MethodPost)
	r.HandleFunc("/chat", h.complete).Methods(http.MethodPost)
}

// stream runs one streamed chat turn. Validation and user-turn persistence
// happen before the stream opens, so those failures are plain HTTP errors;
// once frames flow, failures are in-band only.
func (h *Chat) stream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	convID, err := h.Relay.Prepare(req)
	if err != nil {
		writePrepareError(w, err)
		return
	}
	h.Relay.Stream(r.Context(), w, convID, req.Messages)
}

// complete runs one chat turn and returns the whole assistant message at
// once.
func (h *Chat) complete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	convID, err := h.Relay.Prepare(req)
	if err != nil {
		writePrepareError(w, err)
		return
	}
	msg, err := h.Relay.Complete(r.Context(), convID, req.Messages)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "completion failed")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"id":             msg.ID,
		"message":        msg.Content,
		"conversationId": convID,
	})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (relay.ChatRequest, bool) {
	var req relay.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	return req, true
}

func writePrepareError(w http.ResponseWriter, err error) {
	if errors.Is(err, relay.ErrEmptyMessages) {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.JSONError(w, http.StatusInternalServerError, "failed to prepare conversation")
}
