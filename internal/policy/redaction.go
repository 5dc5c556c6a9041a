// Package policy scrubs user-supplied text before it reaches logs.
package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	tokenPattern = regexp.MustCompile(`(?i)\b(?:bearer\s+|sk-|ghp_|xox[bp]-)[a-z0-9._\-]{8,}`)
)

// RedactPII masks emails, card numbers, phone numbers and bearer-style
// tokens.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range []struct {
		re   *regexp.Regexp
		mark string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{tokenPattern, "[REDACTED_TOKEN]"},
		// cards before phones: a card number also matches the phone pattern
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mark)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// Excerpt redacts s, collapses whitespace and truncates the result to at
// most max runes, appending "…" when cut.
func Excerpt(s string, max int) string {
	out, _ := RedactPII(s)
	out = strings.Join(strings.Fields(out), " ")
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	runes := []rune(out)
	return string(runes[:max]) + "…"
}
