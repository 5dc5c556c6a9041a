package hashtag

import (
	"strings"
	"unicode"
)

// Normalize turns raw model output into "#tag" form, dropping empties and
// case-insensitive duplicates while keeping first-seen order.
func Normalize(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, field := range strings.Fields(r) {
			tag := clean(field)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, "#"+tag)
		}
	}
	return out
}

func clean(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "#")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format joins at most limit tags with single spaces. limit <= 0 keeps all.
func Format(tags []string, limit int) string {
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return strings.Join(tags, " ")
}

type Tier string

const (
	TierMega   Tier = "mega"
	TierLarge  Tier = "large"
	TierMedium Tier = "medium"
	TierNiche  Tier = "niche"
)

// Categorize buckets tags into display tiers by specificity (tag length).
// The tiers are a presentation aid only; they carry no popularity data.
func Categorize(tags []string) map[Tier][]string {
	out := make(map[Tier][]string)
	for _, tag := range tags {
		n := len([]rune(strings.TrimPrefix(tag, "#")))
		var tier Tier
		switch {
		case n <= 6:
			tier = TierMega
		case n <= 10:
			tier = TierLarge
		case n <= 15:
			tier = TierMedium
		default:
			tier = TierNiche
		}
		out[tier] = append(out[tier], tag)
	}
	return out
}
