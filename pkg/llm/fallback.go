package llm

import (
	"context"
	"strings"
	"time"

	"chatrelay/pkg/models"
)

// advisory is prepended to every fallback completion so operators can tell a
// canned answer from a real one at a glance.
const advisory = "Warning: no model API key is configured, so this is a canned demo response.\n\n"

const setupHint = "\n\nTo enable real completions: put OPENAI_API_KEY=your-key in .env and restart the server."

// Fallback generates deterministic canned completions when no model backend
// is configured. Responses are a pure function of the last user turn, so
// tests and demos are reproducible. Deltas are emitted one rune at a time
// with an optional artificial delay to mimic model typing.
type Fallback struct {
	// Delay between rune deltas. Zero disables pacing (tests).
	Delay time.Duration
	// Advisory controls the operator-visible warning prefix.
	Advisory bool
}

// NewFallback returns a fallback backend with the typing delay applied and
// the advisory prefix enabled.
func NewFallback(delay time.Duration) *Fallback {
	return &Fallback{Delay: delay, Advisory: true}
}

// Available always reports true; the fallback is the backend of last resort.
func (f *Fallback) Available() bool { return true }

// Compose picks the canned body for the given last user turn.
func (f *Fallback) Compose(lastUser string) string {
	lower := strings.ToLower(lastUser)
	var body string
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hey"):
		body = "Hello! I am running in demo mode. Configure a model API key to chat with a real model."
	case strings.Contains(lower, "setup") || strings.Contains(lower, "config"):
		body = "To configure a model backend:\n1. Open the .env file\n2. Set OPENAI_API_KEY=your-key-here\n3. Restart the server"
	case strings.Contains(lower, "test"):
		body = "This is a test response. No model API is connected, so you are seeing canned output."
	default:
		body = "This is a demo-mode response; no model backend is configured." + echoNote(lastUser)
	}
	if f.Advisory {
		body = advisory + body + setupHint
	}
	return body
}

// echoNote quotes the leading 50 runes of the user content so the canned
// default still acknowledges what was asked.
func echoNote(content string) string {
	if content == "" {
		return ""
	}
	runes := []rune(content)
	lead := string(runes)
	if len(runes) > 50 {
		lead = string(runes[:50]) + "..."
	}
	return "\n\nNote: received your message \"" + lead + "\"."
}

// StreamCompletion emits the canned completion rune by rune. The channel is
// closed after the final Done delta, or early when ctx is cancelled.
func (f *Fallback) StreamCompletion(ctx context.Context, turns []models.Turn) (<-chan Delta, error) {
	body := f.Compose(lastUserTurn(turns))
	ch := make(chan Delta, 16)
	go func() {
		defer close(ch)
		runes := []rune(body)
		for i, r := range runes {
			if f.Delay > 0 {
				select {
				case <-time.After(f.Delay):
				case <-ctx.Done():
					return
				}
			}
			d := Delta{Content: string(r), Done: i == len(runes)-1}
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
