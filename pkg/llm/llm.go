// Package llm provides completion backends behind a single capability-checked
// interface. The relay asks each backend whether it is usable before routing a
// turn to it, so an unconfigured deployment degrades to the deterministic
// fallback instead of failing.
package llm

import (
	"context"
	"strings"

	"chatrelay/pkg/models"
)

// Delta is one increment of a streamed completion. Content deltas arrive
// first; the final value on the channel has Done set (or Err, when the
// backend failed mid-stream). The channel is closed after the final value.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Completer is a completion backend.
type Completer interface {
	// Available reports whether this backend can serve requests right now.
	Available() bool
	// StreamCompletion starts a completion for the given turns. A non-nil
	// error means the stream never started; errors after the first delta
	// arrive in-band via Delta.Err.
	StreamCompletion(ctx context.Context, turns []models.Turn) (<-chan Delta, error)
}

// Collect drains a delta channel into the full completion text. Used by the
// non-streaming chat endpoint.
func Collect(ch <-chan Delta) (string, error) {
	var b strings.Builder
	for d := range ch {
		if d.Err != nil {
			return b.String(), d.Err
		}
		b.WriteString(d.Content)
	}
	return b.String(), nil
}

// lastUserTurn returns the content of the most recent user turn, or "".
func lastUserTurn(turns []models.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
