package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mathchat/mathchat/internal/chat"
	"github.com/mathchat/mathchat/internal/provider"
	"github.com/mathchat/mathchat/internal/store"
)

// PlainIO implements chat.UI using plain line output. Used when stdout is
// not a terminal (pipes, scripts) and for the one-shot ask command.
type PlainIO struct{}

var _ chat.UI = (*PlainIO)(nil)

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) BotMessage(text string) {
	fmt.Println(text)
}

func (p *PlainIO) ErrorMessage(text string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", text)
}

func (p *PlainIO) LoadingStart() {}
func (p *PlainIO) LoadingStop()  {}

func (p *PlainIO) SessionLoaded(sess *store.Session) {
	fmt.Printf("-- %s --\n", sess.Title)
	for _, msg := range sess.Messages {
		if msg.Role == provider.RoleUser {
			fmt.Printf("你: %s\n", msg.Text)
		} else {
			fmt.Println(msg.Text)
		}
	}
}

func (p *PlainIO) SessionsChanged() {}

func (p *PlainIO) SetProviderLabel(_ string) {}

func (p *PlainIO) AppendInput(_ string) {
	// No pending buffer in plain mode; voice input needs the TUI.
}

// RunPlain is the line-based REPL fallback.
func RunPlain(ctrl *chat.Controller) error {
	if err := ctrl.Bootstrap(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := ctrl.Submit(context.Background(), line); err != nil {
			if errors.Is(err, chat.ErrBusy) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
