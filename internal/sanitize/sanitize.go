// Package sanitize cleans agent output before it enters the transcript
// or the session store. Agent CLIs write ANSI escape sequences when run
// under a PTY, and model output may carry HTML that must not reach a
// browser-based presentation untouched.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// CSI, OSC and single-char ANSI escape sequences.
	reANSI = regexp.MustCompile(`\x1b(\[[0-9;?]*[a-zA-Z]|\][^\x07\x1b]*(\x07|\x1b\\)|[@-Z\\-_])`)

	htmlPolicy = bluemonday.StrictPolicy()
)

// StripANSI removes ANSI escape sequences only, leaving the rest of
// the text byte-for-byte intact. Use this where the text must still
// parse (e.g. JSON captured from a PTY).
func StripANSI(s string) string {
	return reANSI.ReplaceAllString(s, "")
}

// Text strips ANSI escapes and HTML tags from agent output, decodes
// HTML entities, and drops control characters other than newline and
// tab.
func Text(s string) string {
	s = StripANSI(s)
	s = htmlPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Line is Text plus whitespace trimming and a length cap, for one-line
// contexts like tool announcements and prompt titles.
func Line(s string, maxLen int) string {
	s = Text(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return s
}
