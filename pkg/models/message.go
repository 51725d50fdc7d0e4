package models

import "time"

// Role identifies who contributed a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus tracks the client-visible delivery state of a message.
// Persisted messages carry no status; it only exists while a message is
// optimistic or mid-stream on the client.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSuccess MessageStatus = "success"
	StatusError   MessageStatus = "error"
)

type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    MessageStatus `json:"status,omitempty"`
}

// Turn is the role-tagged unit of history handed to a model backend.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnsFromMessages projects a message list onto the backend request shape.
func TurnsFromMessages(msgs []Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}
