package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenMessageID generates a unique message ID. The "msg-" prefix keeps ids
// self-describing in logs and on the wire.
func GenMessageID() string {
	return "msg-" + uuid.NewString()
}

// GenThreadID generates a unique thread (conversation) ID.
func GenThreadID() string {
	return "thread-" + uuid.NewString()
}

// titleMaxRunes bounds derived thread titles to roughly one sidebar line.
const titleMaxRunes = 50

// TitleFromContent derives a thread title from the leading runes of the
// first user message, appending an ellipsis when truncated.
func TitleFromContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= titleMaxRunes {
		return trimmed
	}
	return string(runes[:titleMaxRunes]) + "..."
}
