package client

import (
	"context"
	"sync"
)

// Conversation is an append-only log of turns for one subject.
// Concurrent Ask calls are serialized so each exchange stays adjacent.
type Conversation struct {
	mu       sync.RWMutex
	sendMu   sync.Mutex
	subject  string
	messages []Message
}

// NewConversation starts an empty conversation about subjectKey.
func NewConversation(subjectKey string) *Conversation {
	return &Conversation{subject: subjectKey}
}

// Subject returns the subject key.
func (c *Conversation) Subject() string {
	return c.subject
}

// Append adds msg at the end.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Ask appends a user turn, sends the whole log and appends the reply.
// On failure the user turn stays in the log and no reply is added.
func (c *Conversation) Ask(ctx context.Context, cl *Client, text string) (Message, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.Append(Message{Role: RoleUser, Content: text})
	reply, err := cl.Send(ctx, c.Messages(), c.subject)
	if err != nil {
		return Message{}, err
	}
	c.Append(reply)
	return reply, nil
}
