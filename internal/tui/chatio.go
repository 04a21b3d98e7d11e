package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mathchat/mathchat/internal/chat"
	"github.com/mathchat/mathchat/internal/store"
)

// ChatIO implements chat.UI by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type ChatIO struct {
	program *tea.Program
}

var _ chat.UI = (*ChatIO)(nil)

func (c *ChatIO) UserMessage(text string) {
	c.program.Send(userMsg{text: text})
}

func (c *ChatIO) BotMessage(text string) {
	c.program.Send(botMsg{text: text})
}

func (c *ChatIO) ErrorMessage(text string) {
	c.program.Send(errorMsg{text: text})
}

func (c *ChatIO) LoadingStart() {
	c.program.Send(loadingMsg{on: true})
}

func (c *ChatIO) LoadingStop() {
	c.program.Send(loadingMsg{on: false})
}

func (c *ChatIO) SessionLoaded(sess *store.Session) {
	c.program.Send(sessionLoadedMsg{sess: sess})
}

func (c *ChatIO) SessionsChanged() {
	c.program.Send(sessionsChangedMsg{})
}

func (c *ChatIO) SetProviderLabel(id string) {
	c.program.Send(providerMsg{id: id})
}

func (c *ChatIO) AppendInput(text string) {
	c.program.Send(appendInputMsg{text: text})
}
