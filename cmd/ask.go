package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mathchat/mathchat/internal/mathdown"
	"github.com/mathchat/mathchat/internal/provider"
)

func newAskCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question non-interactively",
		Args:  cobra.MinimumNArgs(1),
		Example: `  mathchat ask "求 x^2 = 4 的解"
  mathchat ask -p deepseek "prove that sqrt(2) is irrational"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return askOnce(strings.Join(args, " "), raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw reply without terminal rendering")

	return cmd
}

// askOnce sends one question to the configured provider and prints the
// reply. History is not touched; one-shot questions stay out of sessions.
func askOnce(question string, raw bool) error {
	cfg := initConfig()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	id := cfg.Provider
	if !registry.Has(id) {
		id = registry.First()
	}
	p, err := registry.Get(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reply, err := p.Complete(ctx, &provider.Request{
		UserText:     question,
		SystemPrompt: cfg.SystemPrompt,
	})
	if err != nil {
		return err
	}

	if !raw && term.IsTerminal(int(os.Stdout.Fd())) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}
		fmt.Println(mathdown.RenderTerminal(reply, width))
		return nil
	}
	fmt.Println(reply)
	return nil
}
