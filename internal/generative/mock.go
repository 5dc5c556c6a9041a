package generative

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ent0n29/postcraft/internal/hashtag"
	"github.com/ent0n29/postcraft/internal/intent"
)

// Mock provides deterministic local output when no model is configured.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) GenerateCaption(ctx context.Context, req CaptionRequest) (CaptionResult, error) {
	if err := ctx.Err(); err != nil {
		return CaptionResult{}, err
	}
	subject := firstNonEmpty(req.Media.Theme, "this moment")
	caption := fmt.Sprintf("Sharing %s.", subject)
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		caption = fmt.Sprintf("Sharing %s (%s).", subject, instr)
	}
	if req.Media.Mood != "" {
		caption += " Feeling " + req.Media.Mood + "."
	}
	return CaptionResult{
		Caption: caption,
		Variations: []string{
			"A little " + subject + " for your feed.",
			"Can't get enough of " + subject + ".",
		},
	}, nil
}

func (Mock) GenerateHashtags(ctx context.Context, req HashtagRequest) (HashtagResult, error) {
	if err := ctx.Err(); err != nil {
		return HashtagResult{}, err
	}
	target := req.TargetCount
	if target <= 0 {
		target = hashtag.DefaultCount
	}
	words := keywords(strings.Join([]string{req.Media.Theme, req.Caption, req.Instruction}, " "))
	words = append(words, "instagood", "photooftheday", "postcraft", "daily", "share", "love",
		"inspiration", "moments", "vibes", "explore", "create", "community")
	tags := hashtag.Normalize(words)
	if len(tags) > target {
		tags = tags[:target]
	}
	return HashtagResult{Hashtags: tags, Formatted: hashtag.Format(tags, req.FormatLimit)}, nil
}

// Apply returns the image unchanged.
func (Mock) Apply(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return ImageResult{}, err
	}
	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	return ImageResult{Data: data, MimeType: req.MimeType, AppliedOps: []string{"passthrough"}, Provider: "mock"}, nil
}

// ClassifyIntent answers with the keyword rules encoded as a model reply.
func (Mock) ClassifyIntent(ctx context.Context, req intent.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := intent.Heuristic(req.Instruction, req.Hints)
	return fmt.Sprintf(`{"caption": %t, "hashtags": %t, "image": %t, "rationale": %q}`, p.Caption, p.Hashtags, p.Image, "mock: "+p.Rationale), nil
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"make": true, "more": true, "some": true, "your": true, "from": true, "into": true,
	"caption": true, "hashtags": true, "hashtag": true, "sharing": true, "please": true,
}

func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 4 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
