package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/pkg/chat"
)

// MockSession records prompts and replays a fixed transcript.
type MockSession struct {
	SubmitFunc func(ctx context.Context, raw string, stream *chat.Stream) (models.Turn, error)
	transcript chat.Transcript
	prompts    []string
}

func (m *MockSession) Submit(ctx context.Context, raw string, stream *chat.Stream) (models.Turn, error) {
	m.prompts = append(m.prompts, raw)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, raw, stream)
	}
	return models.Turn{Role: models.RoleAssistant, Text: "ok"}, nil
}

func (m *MockSession) Transcript() chat.Transcript {
	return m.transcript
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func typeAndSend(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func TestNew(t *testing.T) {
	m := New(context.Background(), &MockSession{}, Options{})
	assert.Equal(t, "Ayurveda Chat", m.opts.Title)
	assert.Equal(t, "Loading...", m.View())

	m = sized(t, m)
	assert.True(t, m.ready)
	assert.Contains(t, m.View(), "Ayurveda Chat")
	assert.Contains(t, m.viewport.View(), "No messages yet.")
}

func TestUpdate_EmptyInputIgnored(t *testing.T) {
	session := &MockSession{}
	m := sized(t, New(context.Background(), session, Options{}))

	for _, text := range []string{"", "   "} {
		var cmd tea.Cmd
		m, cmd = typeAndSend(t, m, text)
		assert.Nil(t, cmd)
		assert.False(t, m.busy)
	}
	assert.Empty(t, session.prompts)
}

func TestUpdate_SubmitAndReply(t *testing.T) {
	session := &MockSession{}
	m := sized(t, New(context.Background(), session, Options{}))

	m, cmd := typeAndSend(t, m, "What is ghee?")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.viewport.View(), "What is ghee?")
	assert.Contains(t, m.View(), "Thinking...")

	// A second Enter while busy does nothing.
	m, cmd2 := typeAndSend(t, m, "again")
	assert.Nil(t, cmd2)

	msg := submitCmd(m.ctx, session, "What is ghee?", nil)()
	require.IsType(t, replyMsg{}, msg)
	assert.Equal(t, []string{"What is ghee?"}, session.prompts)

	session.transcript = chat.Transcript{}.Append(
		models.Turn{Role: models.RoleUser, Text: "What is ghee?. be safe", Display: "What is ghee?"},
		models.Turn{Role: models.RoleAssistant, Text: "Clarified butter."},
	)
	updated, _ := m.Update(msg)
	m = updated.(Model)

	assert.False(t, m.busy)
	view := m.viewport.View()
	assert.Contains(t, view, "What is ghee?")
	assert.Contains(t, view, "Clarified butter.")
	assert.NotContains(t, view, "be safe", "augmented text is not shown")
}

func TestUpdate_Streaming(t *testing.T) {
	m := sized(t, New(context.Background(), &MockSession{}, Options{Streaming: true}))

	m, cmd := typeAndSend(t, m, "tea?")
	require.NotNil(t, cmd)
	require.NotNil(t, m.stream)

	updated, next := m.Update(tokenMsg{stream: m.stream, text: "Ginger "})
	m = updated.(Model)
	assert.NotNil(t, next)
	updated, _ = m.Update(tokenMsg{stream: m.stream, text: "tea."})
	m = updated.(Model)
	assert.Equal(t, "Ginger tea.", m.partial)
	assert.Contains(t, m.viewport.View(), "Ginger tea.")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.True(t, m.stream.Stopped())

	updated, _ = m.Update(replyMsg{turn: models.Turn{Role: models.RoleAssistant, Text: "Ginger tea."}})
	m = updated.(Model)
	assert.Empty(t, m.partial)
	assert.Nil(t, m.stream)
}

func TestUpdate_LateTokenAfterReply(t *testing.T) {
	session := &MockSession{}
	m := sized(t, New(context.Background(), session, Options{Streaming: true}))

	m, _ = typeAndSend(t, m, "greet me")
	first := m.stream
	require.NotNil(t, first)

	updated, _ := m.Update(tokenMsg{stream: first, text: "Hello "})
	m = updated.(Model)

	session.transcript = chat.Transcript{}.Append(
		models.Turn{Role: models.RoleUser, Text: "greet me", Display: "greet me"},
		models.Turn{Role: models.RoleAssistant, Text: "Hello world"},
	)
	updated, _ = m.Update(replyMsg{turn: models.Turn{Role: models.RoleAssistant, Text: "Hello world"}})
	m = updated.(Model)

	updated, cmd := m.Update(tokenMsg{stream: first, text: "world"})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.Empty(t, m.partial)
	assert.Equal(t, 1, strings.Count(m.viewport.View(), "Assistant:"))

	// a token from the previous turn's stream must not leak into the next one
	m, _ = typeAndSend(t, m, "again")
	require.NotNil(t, m.stream)
	require.NotSame(t, first, m.stream)
	updated, _ = m.Update(tokenMsg{stream: first, text: "stale"})
	m = updated.(Model)
	assert.Empty(t, m.partial)
}

func TestWaitForToken(t *testing.T) {
	assert.Nil(t, waitForToken(nil))

	stream := chat.NewStream(1)
	p := &onePipeline{token: "hi"}
	go chat.HandleTurn(context.Background(), chat.Transcript{}, "q", p, chat.TurnOptions{Stream: stream})

	assert.Equal(t, tokenMsg{stream: stream, text: "hi"}, waitForToken(stream)())
	assert.Equal(t, streamDoneMsg{}, waitForToken(stream)())
}

type onePipeline struct{ token string }

func (p *onePipeline) Answer(ctx context.Context, query string, onToken func(string)) (string, error) {
	onToken(p.token)
	return p.token, nil
}

func TestUpdate_ErrorNotice(t *testing.T) {
	session := &MockSession{}
	session.transcript = chat.Transcript{}.Append(
		models.Turn{Role: models.RoleUser, Text: "first", Display: "first"},
		models.Turn{Role: models.RoleUser, Text: "second", Display: "second"},
		models.Turn{Role: models.RoleAssistant, Text: "answer"},
	)
	m := sized(t, New(context.Background(), session, Options{}))
	m.busy = true

	updated, _ := m.Update(replyMsg{err: &chat.TurnError{Prompt: "x", Err: errors.New("429 quota exceeded")}})
	m = updated.(Model)

	assert.False(t, m.busy)
	assert.Contains(t, m.View(), "429 quota exceeded")
	assert.Contains(t, m.viewport.View(), "(no reply)")
}

func TestErrorNotice(t *testing.T) {
	assert.Contains(t, errorNotice(&chat.TurnError{Err: context.DeadlineExceeded}), "took too long")
	assert.Contains(t, errorNotice(chat.ErrTurnInProgress), "previous answer")
	assert.Equal(t, "Error: boom", errorNotice(errors.New("boom")))
}

func TestUpdate_Quit(t *testing.T) {
	m := New(context.Background(), &MockSession{}, Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
