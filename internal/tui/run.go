package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mathchat/mathchat/internal/chat"
	"github.com/mathchat/mathchat/internal/store"
)

// Run starts the bubbletea program in alt-screen mode, wires the controller
// to it, and blocks until the user quits.
func Run(ctrl *chat.Controller, io *ChatIO, st *store.Store) error {
	cb := Callbacks{
		Submit: func(text string) tea.Cmd {
			return func() tea.Msg {
				err := ctrl.Submit(context.Background(), text)
				if errors.Is(err, chat.ErrBusy) {
					// Serialized turns: the extra submit is dropped.
					err = nil
				}
				return submitDoneMsg{err: err}
			}
		},
		List:    st.ListSessions,
		NewChat: func() { _ = ctrl.NewChat() },
		Open:    func(id string) { _ = ctrl.OpenSession(id) },
		Delete:  func(id string) { _ = ctrl.DeleteSession(id) },
		Cycle:   func() { _, _ = ctrl.CycleProvider() },
	}
	cb.TTS = func() {
		on := ctrl.ToggleTTS()
		io.program.Send(ttsMsg{on: on})
	}
	cb.Voice = func() {
		on, err := ctrl.ToggleVoice()
		if err != nil {
			io.ErrorMessage(err.Error())
		}
		io.program.Send(voiceMsg{on: on})
	}
	cb.CancelAuto = ctrl.CancelAutoSubmit

	model := NewModel(cb)
	p := tea.NewProgram(model, tea.WithAltScreen())
	io.program = p

	// The voice countdown submits whatever is in the input buffer.
	ctrl.SetAutoSubmit(func() {
		p.Send(autoSubmitMsg{})
	})

	// Restore persisted state once the program is running.
	go func() {
		if err := ctrl.Bootstrap(); err != nil {
			io.ErrorMessage(err.Error())
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
