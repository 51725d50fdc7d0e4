package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/models"
)

func deltaEvent(id, content, conv string, done bool) StreamEvent {
	return StreamEvent{Kind: EventDelta, Frame: models.StreamFrame{
		ID: id, Content: content, Role: models.RoleAssistant,
		ConversationID: conv, IsDone: done,
	}}
}

func assistantCount(msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			n++
		}
	}
	return n
}

func TestBeginSendInstallsOptimisticPair(t *testing.T) {
	rec := NewReconciler()
	userID, phID := rec.BeginSend("hello")

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, userID, msgs[0].ID)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.StatusSuccess, msgs[0].Status)
	assert.Equal(t, phID, msgs[1].ID)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, models.StatusSending, msgs[1].Status)
	assert.Empty(t, msgs[1].Content)
}

func TestIDMigrationNeverShowsTwoAssistants(t *testing.T) {
	rec := NewReconciler()
	_, phID := rec.BeginSend("hello")

	rec.Apply(deltaEvent("msg-server", "he", "thread-1", false))
	msgs := rec.Messages()
	assert.Equal(t, 1, assistantCount(msgs), "placeholder must be renamed, not duplicated")
	assert.Equal(t, "msg-server", msgs[1].ID)
	assert.NotEqual(t, phID, msgs[1].ID)

	rec.Apply(deltaEvent("msg-server", "llo", "thread-1", false))
	msgs = rec.Messages()
	assert.Equal(t, 1, assistantCount(msgs))
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, 2, len(msgs), "list length is stable across migration")
}

func TestDeltasAppendInOrder(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	for _, c := range []string{"a", "b", "c"} {
		rec.Apply(deltaEvent("msg-1", c, "thread-1", false))
	}
	msgs := rec.Messages()
	assert.Equal(t, "abc", msgs[1].Content)
	assert.Equal(t, models.StatusSending, msgs[1].Status, "still streaming")
}

// In delta mode a redelivered frame appends again; dedup is the server's job.
func TestDuplicateFrameAppendsTwice(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	ev := deltaEvent("msg-1", "x", "thread-1", false)
	rec.Apply(ev)
	rec.Apply(ev)
	assert.Equal(t, "xx", rec.Messages()[1].Content)
}

func TestConversationIDAdoption(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	assert.Empty(t, rec.ConversationID())

	rec.Apply(deltaEvent("msg-1", "a", "thread-9", false))
	assert.Equal(t, "thread-9", rec.ConversationID())

	rec.Apply(StreamEvent{Kind: EventDone, ConversationID: "thread-9"})
	assert.Equal(t, "thread-9", rec.ConversationID())
}

func TestDoneMarksSuccess(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	rec.Apply(deltaEvent("msg-1", "a", "thread-1", false))
	rec.Apply(deltaEvent("msg-1", "", "thread-1", true))
	rec.Apply(StreamEvent{Kind: EventDone, ConversationID: "thread-1"})

	msgs := rec.Messages()
	assert.Equal(t, models.StatusSuccess, msgs[1].Status)

	// late frames for a finished turn are ignored
	rec.Apply(deltaEvent("msg-1", "zzz", "thread-1", false))
	assert.Equal(t, "a", rec.Messages()[1].Content)
}

func TestErrorAndTimeoutMarkError(t *testing.T) {
	for _, kind := range []EventKind{EventError, EventTimeout} {
		rec := NewReconciler()
		rec.BeginSend("q")
		rec.Apply(deltaEvent("msg-1", "par", "thread-1", false))
		rec.Apply(StreamEvent{Kind: kind, Err: ErrUpstream})

		msgs := rec.Messages()
		assert.Equal(t, models.StatusError, msgs[1].Status)
		assert.Equal(t, "par", msgs[1].Content, "partial text stays visible")
	}
}

func TestFailActiveBeforeAnyFrame(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	rec.FailActive()

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusError, msgs[1].Status)

	// safe when nothing is in flight
	rec.FailActive()
}

func TestHandleThreadDeleted(t *testing.T) {
	rec := NewReconciler()
	rec.SetConversationID("thread-1")
	rec.BeginSend("q")
	rec.Apply(deltaEvent("msg-1", "a", "thread-1", false))
	rec.Apply(StreamEvent{Kind: EventDone, ConversationID: "thread-1"})

	rec.HandleThreadDeleted("thread-other")
	assert.Equal(t, "thread-1", rec.ConversationID(), "unrelated deletion is ignored")

	rec.HandleThreadDeleted("thread-1")
	assert.Empty(t, rec.ConversationID())
	assert.Empty(t, rec.Messages())
}

func TestAbandonStopsApplyingEvents(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	rec.Apply(deltaEvent("msg-1", "par", "thread-1", false))
	rec.Abandon()

	rec.Apply(deltaEvent("msg-1", "tial", "thread-1", false))
	rec.Apply(StreamEvent{Kind: EventDone, ConversationID: "thread-1"})

	msgs := rec.Messages()
	assert.Equal(t, "par", msgs[1].Content, "events after abandon are dropped")
	assert.Equal(t, models.StatusSending, msgs[1].Status)
}

func TestSeedReplacesHistory(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("old")
	rec.Seed([]models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "persisted"},
		{ID: "m2", Role: models.RoleAssistant, Content: "reply"},
	})
	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "persisted", msgs[0].Content)

	// a new send appends after the seeded history
	rec.BeginSend("next")
	assert.Len(t, rec.Messages(), 4)
}

func TestMessagesReturnsSnapshot(t *testing.T) {
	rec := NewReconciler()
	rec.BeginSend("q")
	snap := rec.Messages()
	rec.Apply(deltaEvent("msg-1", "abc", "thread-1", false))
	assert.Empty(t, snap[1].Content, "snapshot must not alias internal state")
}
