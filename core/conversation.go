package core

import "sync"

// Conversation is the ordered, append-only turn history sent as context on
// every model call. It is safe for concurrent access, although a single
// exchange is expected to be its only writer.
//
// Contract:
//   - Append never reorders or mutates earlier turns
//   - Snapshot returns a copy so callers cannot alter the history
//   - Reset drops all turns (used by the per-exchange "prompt" history mode)
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{turns: []Turn{}}
}

// Append adds a turn to the end of the history.
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
}

// Snapshot returns a defensive copy of the full history in insertion order.
func (c *Conversation) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// Len returns the number of recorded turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Reset clears the history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = []Turn{}
}
