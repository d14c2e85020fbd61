// Package processing turns a chat request into one model call and the
// model's text into a tutor reply.
package processing

import "github.com/teilomillet/gollm"

// Roles a message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Reply formats on the wire.
const (
	// FormatPlain content is raw model text; the client formats it.
	FormatPlain = "plain"
	// FormatFormatted content is sanitized markup ready to display.
	FormatFormatted = "formatted"
)

// Message is one entry of the conversation as the client keeps it. Order
// encodes turn order.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
	Subject string `json:"subject,omitempty" validate:"omitempty,max=64"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=plain formatted"`
}

// Request is the body of a chat call. The last message is the newest user
// turn.
type Request struct {
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
	Subject  string    `json:"subject,omitempty" validate:"omitempty,max=64"`
}

// Reply is the assistant message returned for one turn.
type Reply struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Format  string `json:"format"`
}

// Turn is one role-tagged entry of the history sent to the model.
type Turn = gollm.PromptMessage
