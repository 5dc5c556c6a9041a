package hashtag

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultCount = 10
	MaxCount     = 30
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a couple of": 2, "a few": 3,
}

const numberAlt = `\d+|one|two|three|four|five|six|seven|eight|nine|ten|a couple of|a few`

var (
	// "3 hashtags", "five funny hashtags", "10 more tags"
	countBeforeTagsRe = regexp.MustCompile(`(?i)\b(` + numberAlt + `)\s+(?:[a-z-]+\s+){0,2}(?:hash)?tags?\b`)
	// "only 5", "just three"
	onlyCountRe = regexp.MustCompile(`(?i)\b(?:only|just)\s+(` + numberAlt + `)\b`)
)

// ParseCount extracts the requested number of hashtags from free text.
// It returns DefaultCount and false when no count is mentioned. Counts
// above MaxCount are clamped; counts below one fall back to the default.
func ParseCount(text string) (int, bool) {
	for _, re := range []*regexp.Regexp{countBeforeTagsRe, onlyCountRe} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, ok := parseNumber(m[1])
		if !ok || n < 1 {
			continue
		}
		if n > MaxCount {
			n = MaxCount
		}
		return n, true
	}
	return DefaultCount, false
}

func parseNumber(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := wordNumbers[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
