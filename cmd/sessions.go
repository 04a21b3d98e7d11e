package cmd

import (
	"fmt"
	"html"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mathchat/mathchat/internal/mathdown"
	"github.com/mathchat/mathchat/internal/provider"
	"github.com/mathchat/mathchat/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsClearCmd())
	cmd.AddCommand(newSessionsExportCmd())
	return cmd
}

// withStore opens the session store for a subcommand and closes it after.
func withStore(fn func(st *store.Store) error) error {
	cfg := initConfig()
	st, _, closeFn, err := openState(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(st)
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions (most recent first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.Store) error {
				infos := st.ListSessions()
				if len(infos) == 0 {
					fmt.Println("No sessions.")
					return nil
				}
				for _, info := range infos {
					marker := " "
					if info.IsActive {
						marker = "*"
					}
					fmt.Printf("%s %-14s %3d msgs  %s\n", marker, info.ID, info.Messages, info.Title)
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			return withStore(func(st *store.Store) error {
				if _, err := st.DeleteSession(args[0], cfg.Greeting); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Print("Delete all sessions? [y/N] ")
				var answer string
				fmt.Scanln(&answer)
				if strings.ToLower(strings.TrimSpace(answer)) != "y" {
					return nil
				}
			}
			cfg := initConfig()
			return withStore(func(st *store.Store) error {
				_, err := st.ClearAll(cfg.Greeting)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newSessionsExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session as Markdown or math-safe HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st *store.Store) error {
				sess, err := st.Get(args[0])
				if err != nil {
					return err
				}
				switch format {
				case "md", "markdown":
					fmt.Print(exportMarkdown(sess))
					return nil
				case "html":
					out, err := exportHTML(sess)
					if err != nil {
						return err
					}
					fmt.Print(out)
					return nil
				default:
					return fmt.Errorf("unknown format %q (want md or html)", format)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format: md or html")
	return cmd
}

// exportMarkdown renders a session as a Markdown transcript.
func exportMarkdown(sess *store.Session) string {
	var sb strings.Builder
	sb.WriteString("# " + sess.Title + "\n\n")
	for _, msg := range sess.Messages {
		role := "**核心**"
		if msg.Role == provider.RoleUser {
			role = "**你**"
		}
		sb.WriteString(role + ":\n\n")
		sb.WriteString(msg.Text)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// exportHTML renders each message through the math-safe pipeline and wraps
// the transcript in a minimal document. A KaTeX-style auto-renderer on the
// host page picks up the marked math spans.
func exportHTML(sess *store.Session) (string, error) {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>")
	sb.WriteString(html.EscapeString(sess.Title))
	sb.WriteString("</title></head>\n<body>\n")

	for _, msg := range sess.Messages {
		class := "bot"
		if msg.Role == provider.RoleUser {
			class = "user"
		}
		rendered, err := mathdown.RenderHTML(msg.Text)
		if err != nil {
			return "", fmt.Errorf("render message: %w", err)
		}
		fmt.Fprintf(&sb, "<div class=\"message %s\">\n%s</div>\n", class, rendered)
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}
