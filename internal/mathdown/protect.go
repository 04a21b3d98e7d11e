// Package mathdown renders chat messages to markup without letting the
// Markdown pass corrupt LaTeX math. Delimited math spans are swapped for
// collision-resistant placeholder tokens before rendering and swapped back
// afterwards, so characters like _, * and \ inside formulas never get
// reinterpreted as Markdown syntax.
package mathdown

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Delimiter forms, extracted in priority order: block math first so that
// $$...$$ is never half-consumed by the inline $...$ pass.
var (
	blockDollar  = regexp.MustCompile(`(?s)\$\$(.*?)\$\$`)
	blockBracket = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	inlineDollar = regexp.MustCompile(`(^|[^\\])\$([^$]+?)\$`)
	inlineParen  = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
)

// span is one extracted math expression, normalized to dollar delimiters.
type span struct {
	body    string
	display bool
}

// Protected is text with math spans replaced by placeholder tokens, plus the
// mapping needed to put them back.
type Protected struct {
	// Text is safe to feed to any Markdown renderer.
	Text string

	spans map[string]span
}

// newToken returns a placeholder that cannot collide with Markdown syntax,
// message text, or another placeholder.
func newToken() string {
	u := uuid.New()
	return "MATHBLOCK" + hex.EncodeToString(u[:]) + "END"
}

// Protect extracts the four delimiter forms from text. Block math ($$...$$
// and \[...\]) is normalized to $$...$$ and isolated by blank lines so the
// Markdown pass treats it as its own block; inline math ($...$ with an
// escaped-\$ guard, and \(...\)) is normalized to $...$. Unbalanced
// delimiters are left untouched: protection is best effort, never a parse
// failure.
func Protect(text string) *Protected {
	p := &Protected{spans: make(map[string]span)}

	out := blockDollar.ReplaceAllStringFunc(text, func(m string) string {
		inner := blockDollar.FindStringSubmatch(m)[1]
		tok := newToken()
		p.spans[tok] = span{body: inner, display: true}
		return "\n\n" + tok + "\n\n"
	})
	out = blockBracket.ReplaceAllStringFunc(out, func(m string) string {
		inner := blockBracket.FindStringSubmatch(m)[1]
		tok := newToken()
		p.spans[tok] = span{body: inner, display: true}
		return "\n\n" + tok + "\n\n"
	})
	out = inlineDollar.ReplaceAllStringFunc(out, func(m string) string {
		sub := inlineDollar.FindStringSubmatch(m)
		tok := newToken()
		p.spans[tok] = span{body: sub[2]}
		return sub[1] + tok
	})
	out = inlineParen.ReplaceAllStringFunc(out, func(m string) string {
		inner := inlineParen.FindStringSubmatch(m)[1]
		tok := newToken()
		p.spans[tok] = span{body: inner}
		return tok
	})

	p.Text = out
	return p
}

// Restore substitutes every placeholder in markup with its canonical
// dollar-delimited source. Plain textual substitution: the spans are never
// re-parsed as markup. An inline span extracted after the block pass can
// carry a block token inside its body (e.g. "$a$$b$$c$"), so substitution
// runs to a fixpoint; bodies only ever nest tokens from earlier passes, so
// the loop terminates.
func (p *Protected) Restore(markup string) string {
	for {
		out := markup
		for tok, sp := range p.spans {
			out = strings.ReplaceAll(out, tok, canonical(sp))
		}
		if out == markup {
			return out
		}
		markup = out
	}
}

// RestoreHTML substitutes every placeholder with its source wrapped in a
// math container. A host typesetter replaces the contents in place; if it
// never runs, the delimited source stays visible as a fallback. Span bodies
// are fully restored before wrapping, so a token nested inside another
// span's body never reaches the output.
func (p *Protected) RestoreHTML(markup string) string {
	for tok, sp := range p.spans {
		src := p.Restore(canonical(sp))
		var wrapped string
		if sp.display {
			wrapped = `<div class="math display">` + src + `</div>`
		} else {
			wrapped = `<span class="math inline">` + src + `</span>`
		}
		markup = strings.ReplaceAll(markup, tok, wrapped)
	}
	return markup
}

func canonical(sp span) string {
	if sp.display {
		return "$$" + sp.body + "$$"
	}
	return "$" + sp.body + "$"
}

// Count returns the number of protected math spans.
func (p *Protected) Count() int { return len(p.spans) }
