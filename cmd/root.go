package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mathchat/mathchat/internal/config"
	"github.com/mathchat/mathchat/internal/provider"
)

var (
	cfgFile      string
	providerFlag string
	modelFlag    string
	dbFlag       string
	plainFlag    bool
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	if err := newRootCmd(version, commit, date).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mathchat",
		Short: "Math-native AI chat in the terminal",
		Long:  "mathchat is a terminal chat client for LaTeX-fluent language models,\nwith persistent sessions and math-safe Markdown rendering.",
		// Running mathchat with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Fall back to plain line mode when stdout is not a terminal
			// and --plain was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("plain") && !term.IsTerminal(int(os.Stdout.Fd())) {
				plainFlag = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/mathchat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "state database path (default ~/.local/share/mathchat/state.db)")
	rootCmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "plain line mode instead of the TUI (default: auto-detect terminal)")

	// Subcommands
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	return rootCmd
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		if cfg.Providers[cfg.Provider] == nil {
			cfg.Providers[cfg.Provider] = &config.ProviderConfig{}
		}
		cfg.Providers[cfg.Provider].Model = modelFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}

	return cfg
}

// inferKind maps a provider name to its wire envelope when the config does
// not name one explicitly. Everything unknown speaks OpenAI-compatible.
func inferKind(name string) provider.Kind {
	switch name {
	case "gemini":
		return provider.KindGemini
	case "anthropic":
		return provider.KindAnthropic
	default:
		return provider.KindOpenAI
	}
}

// buildRegistry turns the configured provider table into adapters. Cycle
// order: the default provider first, the rest alphabetical.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	var names []string
	for name, pc := range cfg.Providers {
		if pc != nil && pc.APIKey != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf(
			"no provider API keys configured.\n"+
				"Set one via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY / GEMINI_API_KEY / DEEPSEEK_API_KEY\n"+
				"  - run: mathchat init",
			cfg.Provider,
		)
	}

	sort.Strings(names)
	ordered := make([]string, 0, len(names))
	for _, n := range names {
		if n == cfg.Provider {
			ordered = append([]string{n}, ordered...)
		} else {
			ordered = append(ordered, n)
		}
	}

	descs := make([]provider.Descriptor, 0, len(ordered))
	for _, name := range ordered {
		pc := cfg.Providers[name]
		kind := provider.Kind(pc.Kind)
		if kind == "" {
			kind = inferKind(name)
		}
		descs = append(descs, provider.Descriptor{
			ID:      name,
			Kind:    kind,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
		})
	}

	return provider.NewRegistry(descs)
}
