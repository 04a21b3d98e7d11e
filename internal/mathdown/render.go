package mathdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// md is configured to match the chat display semantics: GFM extensions plus
// hard wraps, so a single newline becomes a line break.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML converts a raw message to HTML for a hosting page: protect
// math, run the Markdown pass, then restore each span wrapped in a math
// container for the host typesetter.
func RenderHTML(text string) (string, error) {
	prot := Protect(text)

	var buf bytes.Buffer
	if err := md.Convert([]byte(prot.Text), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}

	return prot.RestoreHTML(buf.String()), nil
}
