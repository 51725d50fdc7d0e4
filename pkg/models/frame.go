package models

// StreamFrame is the wire payload of a `message` event on the chat stream.
// Content carries only the new fragment (delta mode); consumers append.
// The final frame of a turn has IsDone=true and empty Content.
type StreamFrame struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	Role           Role   `json:"role"`
	ConversationID string `json:"conversationId"`
	IsDone         bool   `json:"isDone"`
}

// DoneFrame is the payload of the `done` event that closes a successful
// stream, carrying the conversation id so clients without one can adopt it.
type DoneFrame struct {
	ConversationID string `json:"conversationId"`
}

// ErrorFrame is the payload of the in-band `error` event. Streams always
// report failures this way once the response status has been written.
type ErrorFrame struct {
	Error string `json:"error"`
}
