package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/primer/internal/assistant"
)

// Asker is the conversation backend of the chat screen. Implemented by
// assistant.Client.
type Asker interface {
	Ask(ctx context.Context, question string) (assistant.Turn, error)
	Transcript() []assistant.Turn
	Clear()
}

type answerMsg struct {
	turn assistant.Turn
	err  error
}

// ChatModel is the interactive chat screen. Input is disabled while a
// question is awaiting its answer.
type ChatModel struct {
	ctx      context.Context
	asker    Asker
	header   string
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	awaiting bool
	pending  string
	err      error
}

// NewChat builds the chat screen. header is shown above the transcript.
func NewChat(ctx context.Context, asker Asker, header string) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about the textbook..."
	ti.Prompt = "› "
	ti.CharLimit = 1000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return ChatModel{
		ctx:      ctx,
		asker:    asker,
		header:   header,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
	}
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+l":
			m.asker.Clear()
			m.err = nil
			m.pending = ""
			return m, nil
		}
		if m.awaiting {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			m.input.Blur()
			m.awaiting = true
			m.pending = q
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case answerMsg:
		m.awaiting = false
		m.pending = ""
		m.err = msg.err
		m.input.Focus()
		return m, textinput.Blink

	case spinner.TickMsg:
		if !m.awaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m ChatModel) ask(q string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.asker.Ask(m.ctx, q)
		return answerMsg{turn: turn, err: err}
	}
}

// Awaiting reports whether a question is in flight.
func (m ChatModel) Awaiting() bool { return m.awaiting }

func (m ChatModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Physical AI & Humanoid Robotics Assistant"))
	if m.header != "" {
		b.WriteString("  " + subtleStyle.Render(m.header))
	}
	b.WriteString("\n\n")

	vp := m.viewport
	vp.SetContent(m.renderTranscript())
	vp.GotoBottom()
	b.WriteString(vp.View())
	b.WriteString("\n")

	switch {
	case m.awaiting:
		b.WriteString(m.spinner.View() + " Thinking...")
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("enter send · ctrl+l clear · esc quit"))
	return b.String()
}

func (m ChatModel) renderTranscript() string {
	turns := m.asker.Transcript()
	if len(turns) == 0 && m.pending == "" {
		return subtleStyle.Render("Ask me anything about Physical AI, ROS 2, simulation, or humanoid robotics.")
	}

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width)

	var parts []string
	for _, t := range turns {
		parts = append(parts, renderTurn(wrap, t))
	}
	if m.pending != "" && (len(turns) == 0 || turns[len(turns)-1].Content != m.pending) {
		parts = append(parts, renderTurn(wrap, assistant.Turn{Role: assistant.RoleUser, Content: m.pending}))
	}
	return strings.Join(parts, "\n\n")
}

func renderTurn(wrap lipgloss.Style, t assistant.Turn) string {
	if t.Role == assistant.RoleUser {
		return userStyle.Render("You") + "\n" + wrap.Render(t.Content)
	}
	var b strings.Builder
	b.WriteString(botStyle.Render("Assistant") + "\n")
	if t.Fallback {
		b.WriteString(fallbackStyle.Render(wrap.Render(t.Content)))
	} else {
		b.WriteString(wrap.Render(t.Content))
	}
	for _, s := range t.Sources {
		b.WriteString("\n" + sourceStyle.Render(fmt.Sprintf("· %s (%s)", s.Title, s.URL)))
	}
	return b.String()
}
