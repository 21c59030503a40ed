// Package tui is the interactive chat surface.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/pkg/chat"
)

// Session is the TUI-facing subset of a chat session.
type Session interface {
	Submit(ctx context.Context, raw string, stream *chat.Stream) (models.Turn, error)
	Transcript() chat.Transcript
}

type Options struct {
	Title     string
	Summary   string
	Streaming bool
}

type (
	// tokenMsg carries one streamed increment from the stream that produced it.
	tokenMsg struct {
		stream *chat.Stream
		text   string
	}
	streamDoneMsg struct{}
	replyMsg      struct {
		turn models.Turn
		err  error
	}
)

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx     context.Context
	session Session
	opts    Options

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	ready   bool
	busy    bool
	stream  *chat.Stream
	pending string
	partial string
	notice  string
}

func New(ctx context.Context, session Session, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Ayurveda Chat"
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about everyday Ayurveda and press Enter"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		session:  session,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 + bh // header, status, input box
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.stream != nil {
				m.stream.Stop()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy && m.stream != nil {
				m.stream.Stop()
				m.notice = "Stopped streaming; the reply will appear when it completes."
				return m, nil
			}
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tokenMsg:
		// A reader still blocked on a finished turn's stream can deliver
		// after replyMsg has already cleared it.
		if !m.busy || m.stream == nil || msg.stream != m.stream {
			return m, nil
		}
		m.partial += msg.text
		m.refresh()
		return m, waitForToken(m.stream)

	case streamDoneMsg:
		return m, nil

	case replyMsg:
		m.busy = false
		m.stream = nil
		m.pending = ""
		m.partial = ""
		if msg.err != nil {
			m.notice = errorNotice(msg.err)
		} else {
			m.notice = ""
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a turn. Empty input and input typed while a turn is pending
// are ignored.
func (m Model) submit() (tea.Model, tea.Cmd) {
	raw := m.input.Value()
	if strings.TrimSpace(raw) == "" || m.busy {
		return m, nil
	}

	m.input.Reset()
	m.busy = true
	m.notice = ""
	m.partial = ""

	cmds := []tea.Cmd{m.spinner.Tick}
	if m.opts.Streaming {
		m.stream = chat.NewStream(16)
		cmds = append(cmds, waitForToken(m.stream))
	}
	cmds = append(cmds, submitCmd(m.ctx, m.session, raw, m.stream))

	m.pending = raw
	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

// render lays out the transcript. The prompt of a pending turn is shown
// from the model since the session records it only when the turn ends.
func (m Model) render() string {
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	turns := m.session.Transcript().Turns()
	for i, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(wrap.Render(turn.Rendered()))
			if next := i + 1; next < len(turns) && turns[next].Role == models.RoleUser {
				b.WriteString("\n" + errorStyle.Render("(no reply)"))
			}
		case models.RoleAssistant:
			b.WriteString(assistantStyle.Render("Assistant: "))
			b.WriteString(wrap.Render(turn.Text))
		}
		b.WriteString("\n\n")
	}

	if m.pending != "" {
		b.WriteString(userStyle.Render("You: "))
		b.WriteString(wrap.Render(m.pending))
		b.WriteString("\n\n")
	}
	if m.partial != "" {
		b.WriteString(assistantStyle.Render("Assistant: "))
		b.WriteString(wrap.Render(m.partial))
	}

	if b.Len() == 0 {
		return hintStyle.Render("No messages yet.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := headerStyle.Render(m.opts.Title)
	if m.opts.Summary != "" {
		header += "  " + hintStyle.Render(m.opts.Summary)
	}

	var status string
	switch {
	case m.busy:
		status = m.spinner.View() + " Thinking..."
	case m.notice != "":
		status = errorStyle.Render(m.notice)
	default:
		status = hintStyle.Render("Enter to send · PgUp/PgDn to scroll · Esc stops streaming · Ctrl+C quits")
	}

	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func submitCmd(ctx context.Context, session Session, raw string, stream *chat.Stream) tea.Cmd {
	return func() tea.Msg {
		turn, err := session.Submit(ctx, raw, stream)
		return replyMsg{turn: turn, err: err}
	}
}

func waitForToken(stream *chat.Stream) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		tok, ok := <-stream.Tokens()
		if !ok {
			return streamDoneMsg{}
		}
		return tokenMsg{stream: stream, text: tok}
	}
}

func errorNotice(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: the model took too long to answer. Try again."
	case errors.Is(err, chat.ErrTurnInProgress):
		return "Error: still waiting for the previous answer."
	default:
		return "Error: " + err.Error()
	}
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	assistantStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	spinnerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
