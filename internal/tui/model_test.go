package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mathchat/mathchat/internal/store"
)

func TestNextSessionID(t *testing.T) {
	m := NewModel(Callbacks{})

	tests := []struct {
		name     string
		sessions []store.SessionInfo
		expected string
	}{
		{"empty", nil, ""},
		{"single", []store.SessionInfo{{ID: "1", IsActive: true}}, ""},
		{"advances", []store.SessionInfo{
			{ID: "3", IsActive: true}, {ID: "2"}, {ID: "1"},
		}, "2"},
		{"wraps", []store.SessionInfo{
			{ID: "3"}, {ID: "2"}, {ID: "1", IsActive: true},
		}, "3"},
		{"no active falls back to first", []store.SessionInfo{
			{ID: "3"}, {ID: "2"},
		}, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.sessions = tt.sessions
			if got := m.nextSessionID(); got != tt.expected {
				t.Errorf("nextSessionID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActiveSessionID(t *testing.T) {
	m := NewModel(Callbacks{})
	if got := m.activeSessionID(); got != "" {
		t.Errorf("expected empty id with no sessions, got %q", got)
	}

	m.sessions = []store.SessionInfo{{ID: "2"}, {ID: "1", IsActive: true}}
	if got := m.activeSessionID(); got != "1" {
		t.Errorf("activeSessionID() = %q, want %q", got, "1")
	}
}

func TestSubmitInput_GatedWhileLoading(t *testing.T) {
	m := NewModel(Callbacks{Submit: func(string) tea.Cmd {
		return func() tea.Msg { return nil }
	}})
	m.textinput.SetValue("hello")
	m.loading = true

	if cmd := m.submitInput(); cmd != nil {
		t.Error("expected submit suppressed while loading")
	}
	if m.textinput.Value() != "hello" {
		t.Errorf("expected input kept intact, got %q", m.textinput.Value())
	}
}

func TestSubmitInput_WhitespaceIgnored(t *testing.T) {
	m := NewModel(Callbacks{})
	m.textinput.SetValue("   ")
	if cmd := m.submitInput(); cmd != nil {
		t.Error("expected no command for whitespace input")
	}
}
