package processing

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap/zaptest"

	"github.com/teilomillet/studyhall/errors"
	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/mocks"
	"github.com/teilomillet/studyhall/subject"
)

func user(content string) Message      { return Message{Role: RoleUser, Content: content} }
func assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

func TestBuildHistory(t *testing.T) {
	const sys = "You are a helpful tutor."

	tests := []struct {
		name     string
		messages []Message
		history  []Turn
		newMsg   string
	}{
		{
			name:     "single message",
			messages: []Message{user("hi")},
			history:  []Turn{{Role: "user", Content: sys}},
			newMsg:   "hi",
		},
		{
			name:     "one replayed pair",
			messages: []Message{user("a"), assistant("b"), user("c")},
			history: []Turn{
				{Role: "user", Content: sys},
				{Role: "user", Content: "a"},
				{Role: "assistant", Content: "b"},
			},
			newMsg: "c",
		},
		{
			name:     "two pairs in order",
			messages: []Message{user("q1"), assistant("a1"), user("q2"), assistant("a2"), user("q3")},
			history: []Turn{
				{Role: "user", Content: sys},
				{Role: "user", Content: "q1"},
				{Role: "assistant", Content: "a1"},
				{Role: "user", Content: "q2"},
				{Role: "assistant", Content: "a2"},
			},
			newMsg: "q3",
		},
		{
			name:     "consecutive user messages drop the unpaired one",
			messages: []Message{user("a"), user("b")},
			history:  []Turn{{Role: "user", Content: sys}},
			newMsg:   "b",
		},
		{
			name:     "leading assistant greeting is dropped",
			messages: []Message{assistant("Welcome!"), user("a"), assistant("b"), user("c")},
			history: []Turn{
				{Role: "user", Content: sys},
				{Role: "user", Content: "a"},
				{Role: "assistant", Content: "b"},
			},
			newMsg: "c",
		},
		{
			name:     "unpaired user before a pair",
			messages: []Message{user("lost"), user("a"), assistant("b"), user("c")},
			history: []Turn{
				{Role: "user", Content: sys},
				{Role: "user", Content: "a"},
				{Role: "assistant", Content: "b"},
			},
			newMsg: "c",
		},
		{
			name:     "unknown roles never pair",
			messages: []Message{{Role: "system", Content: "x"}, assistant("y"), user("z")},
			history:  []Turn{{Role: "user", Content: sys}},
			newMsg:   "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, newMsg, err := BuildHistory(tt.messages, sys)
			require.NoError(t, err)
			assert.Equal(t, tt.history, history)
			assert.Equal(t, tt.newMsg, newMsg)
		})
	}
}

func TestBuildHistory_Empty(t *testing.T) {
	_, _, err := BuildHistory(nil, "x")
	assert.ErrorIs(t, err, ErrNoMessages)
}

// Replayed turns are exactly the adjacent user→assistant pairs, so the
// history length is always odd and alternates after the system prompt.
func TestBuildHistory_Shape(t *testing.T) {
	inputs := [][]Message{
		{user("1"), user("2"), assistant("3"), assistant("4"), user("5"), assistant("6"), user("7")},
		{assistant("1"), assistant("2"), user("3")},
		{user("1"), assistant("2"), user("3"), assistant("4"), user("5"), assistant("6")},
	}
	for _, in := range inputs {
		history, _, err := BuildHistory(in, "sys")
		require.NoError(t, err)
		require.Equal(t, 1, len(history)%2)
		assert.Equal(t, "sys", history[0].Content)
		for i := 1; i < len(history); i += 2 {
			assert.Equal(t, RoleUser, history[i].Role)
			assert.Equal(t, RoleAssistant, history[i+1].Role)
		}
	}
}

func newTestProcessor(t *testing.T, gen *mocks.MockLLM, m *metrics.Metrics) *Processor {
	t.Helper()
	p, err := NewProcessor(gen, subject.Builtin(), zaptest.NewLogger(t), m)
	require.NoError(t, err)
	return p
}

func TestNewProcessor(t *testing.T) {
	_, err := NewProcessor(nil, subject.Builtin(), nil, nil)
	assert.Error(t, err)

	_, err = NewProcessor(mocks.Reply("x"), nil, nil, nil)
	assert.Error(t, err)

	p, err := NewProcessor(mocks.Reply("x"), subject.Builtin(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Catalog().Len())
}

func TestReply_PromptSentToModel(t *testing.T) {
	gen := mocks.Reply("Photosynthesis turns light into sugar.")
	p := newTestProcessor(t, gen, nil)

	_, err := p.Reply(context.Background(), &Request{
		Subject:  "math",
		Messages: []Message{user("a"), assistant("b"), user("c")},
	})
	require.NoError(t, err)

	require.Equal(t, 1, gen.Calls())
	mathPrompt := subject.Builtin().ResolvePrompt("math")
	assert.Equal(t, []gollm.PromptMessage{
		{Role: "user", Content: mathPrompt},
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	}, gen.LastPrompt().Messages)
}

func TestReply_UnknownSubjectUsesDefaultPrompt(t *testing.T) {
	for _, key := range []string{"", "astrology"} {
		gen := mocks.Reply("ok")
		p := newTestProcessor(t, gen, nil)

		reply, err := p.Reply(context.Background(), &Request{Subject: key, Messages: []Message{user("hi")}})
		require.NoError(t, err)
		assert.Equal(t, FormatPlain, reply.Format)
		assert.Equal(t, []gollm.PromptMessage{
			{Role: "user", Content: subject.DefaultPrompt},
			{Role: "user", Content: "hi"},
		}, gen.LastPrompt().Messages)
	}
}

func TestReply_Formats(t *testing.T) {
	text := "**Force** is a push.\n* Mass: matter\n* Weight: force"

	tests := []struct {
		subject string
		format  string
		content string
	}{
		{"math", FormatPlain, text},
		{"history", FormatPlain, text},
		{"", FormatPlain, text},
		{
			"science",
			FormatFormatted,
			`<p class="intro"><strong>Force</strong> is a push.</p><ul class="category-list"><li>Mass: matter</li><li>Weight: force</li></ul>`,
		},
	}

	for _, tt := range tests {
		t.Run("subject "+tt.subject, func(t *testing.T) {
			m := metrics.NewMetrics()
			p := newTestProcessor(t, mocks.Reply(text), m)

			reply, err := p.Reply(context.Background(), &Request{Subject: tt.subject, Messages: []Message{user("explain")}})
			require.NoError(t, err)
			assert.Equal(t, RoleAssistant, reply.Role)
			assert.Equal(t, tt.format, reply.Format)
			assert.Equal(t, tt.content, reply.Content)

			key := tt.subject
			if key == "" {
				key = "default"
			}
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RepliesTotal.WithLabelValues(key, tt.format)))
		})
	}
}

func TestReply_FormattedOutputIsSanitized(t *testing.T) {
	p := newTestProcessor(t, mocks.Reply("<script>alert(1)</script>\n* <b onclick=x>item</b>"), nil)

	reply, err := p.Reply(context.Background(), &Request{Subject: "science", Messages: []Message{user("hi")}})
	require.NoError(t, err)
	assert.Equal(t, FormatFormatted, reply.Format)
	assert.NotContains(t, reply.Content, "<script")
	assert.NotContains(t, reply.Content, "<b ")
	assert.Contains(t, reply.Content, "<li>")
}

func TestReply_InputErrorsMakeNoCall(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		msg  string
	}{
		{"nil request", nil, MsgNoMessages},
		{"empty messages", &Request{Subject: "math"}, MsgNoMessages},
		{"last message from assistant", &Request{Messages: []Message{user("a"), assistant("b")}}, MsgBadLastTurn},
		{"blank last message", &Request{Messages: []Message{user("   ")}}, MsgBadLastTurn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mocks.Reply("never")
			p := newTestProcessor(t, gen, nil)

			_, err := p.Reply(context.Background(), tt.req)
			require.Error(t, err)

			var te *errors.TutorError
			require.True(t, stderrors.As(err, &te))
			assert.Equal(t, errors.ValidationError, te.Type)
			assert.Equal(t, 400, te.Code)
			assert.Equal(t, tt.msg, te.Message)
			assert.Zero(t, gen.Calls())
		})
	}
}

func TestReply_ServiceError(t *testing.T) {
	gen := mocks.Fail(stderrors.New("quota exceeded"))
	p := newTestProcessor(t, gen, nil)

	_, err := p.Reply(context.Background(), &Request{Messages: []Message{user("hi")}})

	var te *errors.TutorError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.ServiceError, te.Type)
	assert.Equal(t, 500, te.Code)
	assert.Equal(t, "quota exceeded", te.Details)
	assert.Equal(t, 1, gen.Calls(), "failures are not retried")
}

func TestReply_FormattingError(t *testing.T) {
	p := newTestProcessor(t, mocks.Reply("bad \xff bytes"), nil)

	_, err := p.Reply(context.Background(), &Request{Subject: "science", Messages: []Message{user("hi")}})

	var te *errors.TutorError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.FormattingError, te.Type)
	assert.Equal(t, 500, te.Code)
	assert.True(t, strings.Contains(te.Details, "UTF-8"))
}

func TestReply_InvalidUTF8IsFineForPlainSubjects(t *testing.T) {
	p := newTestProcessor(t, mocks.Reply("bad \xff bytes"), nil)

	reply, err := p.Reply(context.Background(), &Request{Subject: "math", Messages: []Message{user("hi")}})
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, reply.Format)
}

func TestReply_Concurrent(t *testing.T) {
	gen := mocks.NewMockLLM(func(_ context.Context, prompt *gollm.Prompt) (string, error) {
		return "echo: " + prompt.Messages[len(prompt.Messages)-1].Content, nil
	})
	p := newTestProcessor(t, gen, metrics.NewMetrics())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := strings.Repeat("x", i+1)
			reply, err := p.Reply(context.Background(), &Request{Messages: []Message{user(msg)}})
			if assert.NoError(t, err) {
				assert.Equal(t, "echo: "+msg, reply.Content)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, gen.Calls())
}
