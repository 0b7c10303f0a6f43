package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/primer/internal/assistant"
)

type fakeAsker struct {
	mu    sync.Mutex
	turns []assistant.Turn
	asks  []string
}

func (f *fakeAsker) Ask(_ context.Context, q string) (assistant.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, q)
	reply := assistant.Turn{Role: assistant.RoleAssistant, Content: "Reply to " + q, Sources: []assistant.Source{{Title: "Intro", URL: "/docs/intro"}}}
	f.turns = append(f.turns, assistant.Turn{Role: assistant.RoleUser, Content: q}, reply)
	return reply, nil
}

func (f *fakeAsker) Transcript() []assistant.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assistant.Turn(nil), f.turns...)
}

func (f *fakeAsker) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = nil
}

func typeText(m tea.Model, s string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

// findAnswer runs cmd (and any batched cmds) and returns the answerMsg.
func findAnswer(t *testing.T, cmd tea.Cmd) answerMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	switch msg := cmd().(type) {
	case answerMsg:
		return msg
	case tea.BatchMsg:
		for _, c := range msg {
			if c == nil {
				continue
			}
			if a, ok := c().(answerMsg); ok {
				return a
			}
		}
	}
	t.Fatal("no answerMsg produced")
	return answerMsg{}
}

func TestChat_AskAndAnswer(t *testing.T) {
	asker := &fakeAsker{}
	var m tea.Model = NewChat(context.Background(), asker, "Student · English")

	m = typeText(m, "What is ROS 2?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	cm := m.(ChatModel)
	if !cm.Awaiting() {
		t.Fatal("should be awaiting after enter")
	}
	if !strings.Contains(cm.View(), "What is ROS 2?") {
		t.Error("pending question should be shown immediately")
	}

	answer := findAnswer(t, cmd)
	m, _ = m.Update(answer)
	cm = m.(ChatModel)
	if cm.Awaiting() {
		t.Error("should be idle after answer")
	}
	view := cm.View()
	for _, want := range []string{"Reply to What is ROS 2?", "Intro (/docs/intro)", "Student · English"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestChat_InputDisabledWhileAwaiting(t *testing.T) {
	asker := &fakeAsker{}
	var m tea.Model = NewChat(context.Background(), asker, "")

	m = typeText(m, "first")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	m = typeText(m, "second")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter while awaiting must not send")
	}
	if v := m.(ChatModel).input.Value(); v != "" {
		t.Errorf("input accepted %q while awaiting", v)
	}
}

func TestChat_EmptyEnterIgnored(t *testing.T) {
	var m tea.Model = NewChat(context.Background(), &fakeAsker{}, "")
	m = typeText(m, "   ")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.(ChatModel).Awaiting() {
		t.Error("blank question should be ignored")
	}
}

func TestChat_CtrlLClears(t *testing.T) {
	asker := &fakeAsker{}
	asker.Ask(context.Background(), "old")
	var m tea.Model = NewChat(context.Background(), asker, "")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(asker.Transcript()) != 0 {
		t.Error("ctrl+l should clear the transcript")
	}
	if strings.Contains(m.View(), "old") {
		t.Error("cleared turns still rendered")
	}
}

func TestChat_Quit(t *testing.T) {
	var m tea.Model = NewChat(context.Background(), &fakeAsker{}, "")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc should quit")
	}
}

func TestChat_FallbackRendered(t *testing.T) {
	asker := &fakeAsker{turns: []assistant.Turn{
		{Role: assistant.RoleUser, Content: "q"},
		{Role: assistant.RoleAssistant, Content: assistant.FallbackMessage, Fallback: true},
	}}
	m := NewChat(context.Background(), asker, "")
	if !strings.Contains(m.View(), "Sorry, I encountered an error") {
		t.Error("fallback reply not rendered")
	}
}
