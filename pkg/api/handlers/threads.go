package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"
)

// Threads serves the thread CRUD surface.
type Threads struct {
	Store store.Store
}

// RegisterThreads registers all thread routes on the router.
func RegisterThreads(r *mux.Router, st store.Store) {
	h := &Threads{Store: st}
	r.HandleFunc("/threads", h.create).Methods(http.MethodPost)
	r.HandleFunc("/threads", h.list).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}", h.rename).Methods(http.MethodPut)
	r.HandleFunc("/threads/{id}", h.delete).Methods(http.MethodDelete)
}

func (h *Threads) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		// an empty body is fine; the title is optional
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	title := body.Title
	if title == "" {
		title = models.DefaultThreadTitle
	}
	now := time.Now().UTC()
	t := models.Thread{
		ID:        utils.GenThreadID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateThread(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to create thread")
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{"thread": t})
}

func (h *Threads) list(w http.ResponseWriter, r *http.Request) {
	threads, err := h.Store.ListThreads()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"threads": threads})
}

func (h *Threads) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := h.Store.GetThread(id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if t.Messages == nil {
		t.Messages = []models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"thread": t})
}

func (h *Threads) rename(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Title == "" {
		utils.JSONError(w, http.StatusBadRequest, "title is required")
		return
	}
	err := h.Store.RenameThread(id, body.Title)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to rename thread")
		return
	}
	t, err := h.Store.GetThread(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"thread": t.Summary()})
}

func (h *Threads) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.Store.DeleteThread(id)
	if errors.Is(err, store.ErrNotFound) {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to delete thread")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
