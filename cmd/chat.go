package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mathchat/mathchat/internal/chat"
	"github.com/mathchat/mathchat/internal/config"
	"github.com/mathchat/mathchat/internal/store"
	"github.com/mathchat/mathchat/internal/tui"
)

// runChat starts the interactive chat client.
func runChat() error {
	cfg := initConfig()

	registry, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	st, logger, closeFn, err := openState(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeFn()

	if plainFlag {
		ui := &tui.PlainIO{}
		ctrl := chat.New(cfg, st, registry, ui, logger)
		return tui.RunPlain(ctrl)
	}

	io := &tui.ChatIO{}
	ctrl := chat.New(cfg, st, registry, io, logger)
	return tui.Run(ctrl, io, st)
}

// openState opens the session store and a file-backed logger beside it.
// Logging goes to a file because stderr belongs to the TUI.
func openState(cfg *config.Config) (*store.Store, *slog.Logger, func(), error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("state db path: %w", err)
		}
		dbPath = p
	}

	logger := slog.Default()
	var logFile *os.File
	if f, err := openLogFile(dbPath); err == nil {
		logFile = f
		logger = slog.New(slog.NewTextHandler(f, nil))
	}

	st, err := store.Open(dbPath, logger)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, nil, nil, fmt.Errorf("open session store: %w", err)
	}

	closeFn := func() {
		st.Close()
		if logFile != nil {
			logFile.Close()
		}
	}
	return st, logger, closeFn, nil
}

func openLogFile(dbPath string) (*os.File, error) {
	path := filepath.Join(filepath.Dir(dbPath), "mathchat.log")
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}
