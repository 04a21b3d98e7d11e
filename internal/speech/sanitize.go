package speech

import (
	"regexp"
	"strings"
)

var bracketSpan = regexp.MustCompile(`\[.*?\]`)

// CleanForSpeech strips markup that sounds wrong when read aloud: Markdown
// and math delimiter characters ($ * # `), bracketed spans, and newlines,
// which become Chinese commas so the voice pauses between lines.
func CleanForSpeech(text string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case '$', '*', '#', '`':
			return -1
		}
		return r
	}, text)
	out = bracketSpan.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "\n", "，")
	return out
}
