package client

import (
	"sync"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

// Reconciler maintains the client-visible message list for one conversation
// view. Sending a turn installs an optimistic user message and an empty
// assistant placeholder; server frames then migrate the placeholder onto the
// server-issued id and grow its content delta by delta. The list never shows
// two assistant messages for one in-flight turn, and order is stable across
// every transition.
type Reconciler struct {
	mu       sync.Mutex
	messages []models.Message
	convID   string

	// in-flight turn state
	activeID string // current id of the assistant placeholder, "" when idle
	migrated bool
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Messages returns a snapshot copy of the visible list.
func (c *Reconciler) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ConversationID returns the adopted conversation id, or "".
func (c *Reconciler) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// SetConversationID pins the conversation before the first send, e.g. when
// resuming an existing thread.
func (c *Reconciler) SetConversationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convID = id
}

// Seed replaces the visible list with persisted history, e.g. after loading
// a thread.
func (c *Reconciler) Seed(msgs []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]models.Message, len(msgs))
	copy(c.messages, msgs)
	c.activeID = ""
	c.migrated = false
}

// BeginSend installs the optimistic user message and the assistant
// placeholder for one turn. It returns their ids.
func (c *Reconciler) BeginSend(content string) (userID, placeholderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	userID = utils.GenMessageID()
	placeholderID = utils.GenMessageID()
	c.messages = append(c.messages,
		models.Message{ID: userID, Role: models.RoleUser, Content: content,
			CreatedAt: now, Status: models.StatusSuccess},
		models.Message{ID: placeholderID, Role: models.RoleAssistant, Content: "",
			CreatedAt: now, Status: models.StatusSending},
	)
	c.activeID = placeholderID
	c.migrated = false
	return userID, placeholderID
}

// Apply feeds one consumer event into the state machine. It is the OnEvent
// handler for ConsumeStream.
func (c *Reconciler) Apply(ev StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case EventDelta:
		c.applyFrame(ev.Frame)
	case EventDone:
		if ev.ConversationID != "" {
			c.convID = ev.ConversationID
		}
		c.setActiveStatus(models.StatusSuccess)
		c.activeID = ""
	case EventError, EventTimeout:
		c.setActiveStatus(models.StatusError)
		c.activeID = ""
	}
}

func (c *Reconciler) applyFrame(f models.StreamFrame) {
	if c.activeID == "" {
		// frame for a turn we no longer track
		return
	}
	i := c.indexOf(c.activeID)
	if i < 0 {
		return
	}
	// first server frame carries the authoritative id; rename the
	// placeholder in place so the list never holds both
	if !c.migrated && f.ID != "" && f.ID != c.activeID {
		c.messages[i].ID = f.ID
		c.activeID = f.ID
		c.migrated = true
	}
	c.messages[i].Content += f.Content
	if f.ConversationID != "" {
		c.convID = f.ConversationID
	}
	if f.IsDone {
		c.messages[i].Status = models.StatusSuccess
	}
}

// FailActive marks the in-flight assistant message failed, for send paths
// that die before any stream event arrives. Safe to call when nothing is in
// flight.
func (c *Reconciler) FailActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setActiveStatus(models.StatusError)
	c.activeID = ""
}

// Abandon stops applying further stream events to the in-flight turn, e.g.
// when the user switches to another thread. The placeholder keeps whatever
// content it has; server-side generation continues and is persisted for
// later retrieval.
func (c *Reconciler) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = ""
	c.migrated = false
}

// HandleThreadDeleted forgets the conversation when its server-side thread
// was deleted. The visible list is cleared so the view cannot keep appending
// to a dead conversation.
func (c *Reconciler) HandleThreadDeleted(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convID != threadID {
		return
	}
	c.convID = ""
	c.messages = nil
	c.activeID = ""
	c.migrated = false
}

func (c *Reconciler) setActiveStatus(s models.MessageStatus) {
	if c.activeID == "" {
		return
	}
	if i := c.indexOf(c.activeID); i >= 0 {
		c.messages[i].Status = s
	}
}

func (c *Reconciler) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}
