package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/studyhall/server/processing"
)

// wordTokenizer counts whitespace-separated words.
type wordTokenizer struct{}

func (wordTokenizer) CountTokens(text string) int { return len(strings.Fields(text)) }

func TestValidate(t *testing.T) {
	v := New(nil, 0)

	tests := []struct {
		name    string
		req     *processing.Request
		wantMsg string
		field   string
	}{
		{
			name: "valid single message",
			req:  &processing.Request{Messages: []processing.Message{{Role: "user", Content: "hi"}}},
		},
		{
			name: "valid conversation with empty earlier content",
			req: &processing.Request{Subject: "science", Messages: []processing.Message{
				{Role: "assistant", Content: ""},
				{Role: "user", Content: "q", Format: "plain"},
				{Role: "assistant", Content: "<p>a</p>", Format: "formatted"},
				{Role: "user", Content: "q2"},
			}},
		},
		{
			name:    "nil request",
			req:     nil,
			wantMsg: processing.MsgNoMessages,
		},
		{
			name:    "empty messages",
			req:     &processing.Request{Messages: []processing.Message{}},
			wantMsg: processing.MsgNoMessages,
		},
		{
			name: "unknown role",
			req: &processing.Request{Messages: []processing.Message{
				{Role: "system", Content: "x"},
				{Role: "user", Content: "y"},
			}},
			wantMsg: MsgInvalidFields,
			field:   "messages[0].role",
		},
		{
			name:    "missing role",
			req:     &processing.Request{Messages: []processing.Message{{Content: "x"}}},
			wantMsg: MsgInvalidFields,
			field:   "messages[0].role",
		},
		{
			name: "unknown format",
			req: &processing.Request{Messages: []processing.Message{
				{Role: "user", Content: "x", Format: "html"},
			}},
			wantMsg: MsgInvalidFields,
			field:   "messages[0].format",
		},
		{
			name: "subject too long",
			req: &processing.Request{
				Subject:  strings.Repeat("s", 65),
				Messages: []processing.Message{{Role: "user", Content: "x"}},
			},
			wantMsg: MsgInvalidFields,
			field:   "subject",
		},
		{
			name: "last turn from assistant",
			req: &processing.Request{Messages: []processing.Message{
				{Role: "user", Content: "x"},
				{Role: "assistant", Content: "y"},
			}},
			wantMsg: processing.MsgBadLastTurn,
			field:   "messages[1]",
		},
		{
			name:    "blank last turn",
			req:     &processing.Request{Messages: []processing.Message{{Role: "user", Content: " \n"}}},
			wantMsg: processing.MsgBadLastTurn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}

			var verr *Error
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantMsg, verr.Message)
			if tt.field != "" {
				require.NotEmpty(t, verr.Details)
				assert.Equal(t, tt.field, verr.Details[0].Field)
				assert.Contains(t, verr.Error(), tt.field)
			}
		})
	}
}

func TestValidate_TokenLimit(t *testing.T) {
	v := New(NewTokenCounterWith(wordTokenizer{}), 5)

	ok := &processing.Request{Messages: []processing.Message{
		{Role: "user", Content: "one two"},
		{Role: "assistant", Content: "three"},
		{Role: "user", Content: "four five"},
	}}
	assert.NoError(t, v.Validate(ok))

	tooLong := &processing.Request{Messages: []processing.Message{
		{Role: "user", Content: "one two three"},
		{Role: "assistant", Content: "four five"},
		{Role: "user", Content: "six"},
	}}
	err := v.Validate(tooLong)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, MsgTooLong, verr.Message)
	assert.Equal(t, "token_limit_exceeded", verr.Details[0].Code)
	assert.Contains(t, verr.Summary(), "total tokens (6) exceeds max context length (5)")
}

func TestValidate_TokenLimitDisabled(t *testing.T) {
	v := New(NewTokenCounterWith(wordTokenizer{}), 0)
	req := &processing.Request{Messages: []processing.Message{{Role: "user", Content: strings.Repeat("word ", 1000)}}}
	assert.NoError(t, v.Validate(req))
}

func TestTokenCounter(t *testing.T) {
	tc := NewTokenCounterWith(wordTokenizer{})
	req := &processing.Request{Messages: []processing.Message{
		{Role: "user", Content: "a b c"},
		{Role: "assistant", Content: "d"},
	}}
	assert.Equal(t, 4, tc.CountRequestTokens(req))
	assert.Error(t, tc.ValidateTokens(req, 0))
	assert.NoError(t, tc.ValidateTokens(req, 4))
	assert.Error(t, tc.ValidateTokens(req, 3))
}
