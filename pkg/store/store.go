// Package store owns conversation persistence. The relay is the only writer;
// appends to the same thread are serialized per-thread by each
// implementation so concurrent turns never interleave message order.
package store

import (
	"errors"

	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

// ErrNotFound is returned when a thread id is unknown.
var ErrNotFound = errors.New("thread not found")

// Store is the injectable thread storage interface. Implementations must
// keep a thread's message sequence append-only and ordered by insertion.
type Store interface {
	// CreateThread persists a new thread. The caller supplies the id.
	CreateThread(t models.Thread) error
	// GetThread returns the thread with its full message list.
	GetThread(id string) (models.Thread, error)
	// ListThreads returns thread summaries (no messages), most recently
	// updated first.
	ListThreads() ([]models.Thread, error)
	// RenameThread sets the title and advances UpdatedAt.
	RenameThread(id, title string) error
	// DeleteThread removes the thread and all its messages.
	DeleteThread(id string) error
	// AppendMessage appends a message and advances UpdatedAt. The first
	// user message retitles a thread still carrying the default title.
	AppendMessage(threadID string, m models.Message) error

	Close() error
}

// maybeRetitle derives a real title from the first user message when the
// thread still carries the placeholder title.
func maybeRetitle(t *models.Thread, m models.Message) {
	if m.Role != models.RoleUser {
		return
	}
	if t.Title != "" && t.Title != models.DefaultThreadTitle {
		return
	}
	if title := utils.TitleFromContent(m.Content); title != "" {
		t.Title = title
	}
}
