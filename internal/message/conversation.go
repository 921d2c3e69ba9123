package message

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ChangeOp string

const (
	OpAppend   ChangeOp = "append"
	OpUpdate   ChangeOp = "update"
	OpComplete ChangeOp = "complete"
)

// Change describes one mutation of the conversation. Entry is a snapshot
// taken under the lock, so subscribers never observe later edits.
type Change struct {
	Op    ChangeOp
	Entry Entry
}

// Handle refers to an entry inside one Conversation. The zero Handle is
// invalid and every operation on it is a no-op.
type Handle struct {
	id string
}

func (h Handle) Valid() bool { return h.id != "" }

func (h Handle) ID() string { return h.id }

// Conversation holds the ordered entries of one chat session. All methods
// are safe for concurrent use.
type Conversation struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
	byCall  map[string]string
	subs    map[int]chan Change
	nextSub int
}

func NewConversation() *Conversation {
	return &Conversation{
		entries: make(map[string]*Entry),
		byCall:  make(map[string]string),
		subs:    make(map[int]chan Change),
	}
}

// Append adds the entry at the end of the conversation and returns a handle
// to it. A missing ID or CreatedAt is filled in. Append never fails; a
// duplicate tool call id keeps the first mapping.
func (c *Conversation) Append(e Entry) Handle {
	if c == nil {
		return Handle{}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusIdle
	}

	c.mu.Lock()
	if _, exists := c.entries[e.ID]; exists {
		c.mu.Unlock()
		return Handle{id: e.ID}
	}
	stored := e
	c.entries[e.ID] = &stored
	c.order = append(c.order, e.ID)
	if e.Tool != nil && e.Tool.CallID != "" {
		if _, dup := c.byCall[e.Tool.CallID]; !dup {
			c.byCall[e.Tool.CallID] = e.ID
		}
	}
	c.notifyLocked(Change{Op: OpAppend, Entry: stored})
	c.mu.Unlock()
	return Handle{id: e.ID}
}

// UpdateText replaces the text of a growing entry. Updates against a
// terminal entry or an unknown handle are ignored.
func (c *Conversation) UpdateText(h Handle, text string) {
	if c == nil || !h.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h.id]
	if !ok || e.Terminal() {
		return
	}
	if e.Text == text {
		return
	}
	e.Text = text
	c.notifyLocked(Change{Op: OpUpdate, Entry: *e})
}

// AppendText appends a delta to a growing entry and returns the accumulated
// text.
func (c *Conversation) AppendText(h Handle, delta string) string {
	if c == nil || !h.Valid() {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h.id]
	if !ok {
		return ""
	}
	if e.Terminal() || delta == "" {
		return e.Text
	}
	e.Text += delta
	c.notifyLocked(Change{Op: OpUpdate, Entry: *e})
	return e.Text
}

// SetExecuting moves an idle entry into the executing state.
func (c *Conversation) SetExecuting(h Handle) {
	if c == nil || !h.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h.id]
	if !ok || e.Terminal() || e.Status == StatusExecuting {
		return
	}
	e.Status = StatusExecuting
	c.notifyLocked(Change{Op: OpUpdate, Entry: *e})
}

// Complete moves an entry into a terminal status. The first call wins:
// repeating the same terminal status reports committed=false with no error
// and no notification, while a different terminal status after the first is
// an error. For tool entries output is recorded alongside the status.
func (c *Conversation) Complete(h Handle, status Status, output string) (committed bool, err error) {
	if c == nil || !h.Valid() {
		return false, fmt.Errorf("complete: invalid handle")
	}
	if !IsTerminalStatus(status) {
		return false, fmt.Errorf("complete: %q is not a terminal status", status)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h.id]
	if !ok {
		return false, fmt.Errorf("complete: unknown entry %s", h.id)
	}
	if e.Terminal() {
		if e.Status == status {
			return false, nil
		}
		return false, fmt.Errorf("complete: entry %s already %s, refusing %s", h.id, e.Status, status)
	}
	e.Status = status
	if e.Tool != nil {
		e.Tool.Output = output
		e.Tool.Detail = DetailForOutput(e.Tool.Detail, output)
	} else if output != "" && e.Text == "" {
		e.Text = output
	}
	c.notifyLocked(Change{Op: OpComplete, Entry: *e})
	return true, nil
}

// Lookup resolves an entry id to a handle.
func (c *Conversation) Lookup(id string) (Handle, bool) {
	if c == nil || id == "" {
		return Handle{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return Handle{}, false
	}
	return Handle{id: id}, true
}

// FindToolEntry resolves a tool call id to the entry created for it.
func (c *Conversation) FindToolEntry(callID string) (Handle, bool) {
	if c == nil || callID == "" {
		return Handle{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byCall[callID]
	if !ok {
		return Handle{}, false
	}
	return Handle{id: id}, true
}

// Entry returns a snapshot of the entry behind the handle.
func (c *Conversation) Entry(h Handle) (Entry, bool) {
	if c == nil || !h.Valid() {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h.id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a snapshot of every entry in insertion order.
func (c *Conversation) Entries() []Entry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

// Children returns the entries nested under the given parent, in order.
func (c *Conversation) Children(parentID string) []Entry {
	if c == nil || parentID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for _, id := range c.order {
		if e := c.entries[id]; e.ParentID == parentID {
			out = append(out, *e)
		}
	}
	return out
}

// OpenEntries returns handles to every entry still in a non-terminal state.
// ParentID filtering applies when parentID is non-empty.
func (c *Conversation) OpenEntries(parentID string) []Handle {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Handle
	for _, id := range c.order {
		e := c.entries[id]
		if e.Terminal() {
			continue
		}
		if parentID != "" && e.ParentID != parentID && e.ID != parentID {
			continue
		}
		out = append(out, Handle{id: id})
	}
	return out
}

func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Subscribe registers a change listener. The returned channel is buffered;
// when a subscriber falls behind, changes are dropped rather than blocking
// mutations, so consumers should re-render from Entries() on wakeup. The
// cancel func unregisters the subscriber and closes the channel.
func (c *Conversation) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 512)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()
	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Conversation) notifyLocked(ch Change) {
	for _, sub := range c.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}
