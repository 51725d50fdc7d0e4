package models

import "time"

type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultThreadTitle is the placeholder title until the first user message
// arrives and a real title can be derived from it.
const DefaultThreadTitle = "New Chat"

// Summary returns a copy of the thread without its message list, suitable
// for list endpoints.
func (t Thread) Summary() Thread {
	t.Messages = nil
	return t
}
