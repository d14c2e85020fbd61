package processing

import "errors"

// ErrNoMessages is returned for an empty conversation.
var ErrNoMessages = errors.New("conversation has no messages")

// BuildHistory projects a flat message list onto the history the model
// sees and the message it must answer.
//
// The system prompt always comes first, sent with the user role. Earlier
// messages are replayed only as adjacent user→assistant pairs; anything
// that is not part of such a pair (two user turns in a row, a leading
// assistant turn) is dropped. The content of the last message is returned
// separately as the new message.
func BuildHistory(messages []Message, systemPrompt string) ([]Turn, string, error) {
	if len(messages) == 0 {
		return nil, "", ErrNoMessages
	}

	history := make([]Turn, 1, len(messages)+1)
	history[0] = Turn{Role: RoleUser, Content: systemPrompt}

	for i := 0; i < len(messages)-1; i++ {
		if messages[i].Role == RoleUser && messages[i+1].Role == RoleAssistant {
			history = append(history,
				Turn{Role: RoleUser, Content: messages[i].Content},
				Turn{Role: RoleAssistant, Content: messages[i+1].Content},
			)
		}
	}

	return history, messages[len(messages)-1].Content, nil
}
