package mathdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderTerminal renders a message for the TUI viewport. Math spans go
// through the same protect/restore pipeline so LaTeX survives the glamour
// pass. Any renderer failure falls back to the raw text: a failed render
// must not crash or blank the display.
func RenderTerminal(text string, width int) string {
	if width <= 0 {
		width = 80
	}

	prot := Protect(text)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return text
	}

	rendered, err := r.Render(prot.Text)
	if err != nil {
		return text
	}

	return prot.Restore(strings.TrimRight(rendered, "\n"))
}
