package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/primer/internal/profile"
)

// PreferenceStore is what the preference screen reads and writes. Implemented
// by profile.Manager.
type PreferenceStore interface {
	Get() profile.Profile
	Update(f profile.Field, value string) error
}

// PreferencesModel lets the learner cycle through the allowed values of each
// field. Every change is written through immediately.
type PreferencesModel struct {
	store  PreferenceStore
	fields []profile.Field
	cursor int
	err    error
}

func NewPreferences(store PreferenceStore) PreferencesModel {
	return PreferencesModel{store: store, fields: profile.Fields()}
}

func (m PreferencesModel) Init() tea.Cmd { return nil }

func (m PreferencesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q", "enter":
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.fields)) % len(m.fields)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.fields)
	case "right", "l", " ":
		m.err = m.cycle(1)
	case "left", "h":
		m.err = m.cycle(-1)
	}
	return m, nil
}

// choices returns the selectable values of f; optional fields start with unset.
func choices(f profile.Field) []string {
	opts := profile.Options(f)
	if f.Required() {
		return opts
	}
	return append([]string{""}, opts...)
}

func (m PreferencesModel) cycle(step int) error {
	f := m.fields[m.cursor]
	opts := choices(f)
	cur := m.store.Get().Value(f)
	idx := 0
	for i, o := range opts {
		if o == cur {
			idx = i
			break
		}
	}
	next := opts[(idx+step+len(opts))%len(opts)]
	return m.store.Update(f, next)
}

func (m PreferencesModel) View() string {
	p := m.store.Get()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Learning preferences") + "\n\n")
	for i, f := range m.fields {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("› ")
		}
		fmt.Fprintf(&b, "%s%-14s ‹ %s ›\n", pointer, f.Title(), valueStyle.Render(profile.Label(p.Value(f))))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + subtleStyle.Render("↑/↓ choose · ←/→ change · enter done"))
	return b.String()
}
