package voice

import (
	"context"
	"strings"

	"github.com/ent0n29/postcraft/internal/audio"
)

const DefaultMockTranscript = "Create a caption and hashtags for this post"

// Mock returns a fixed transcript for any non-empty audio.
type Mock struct {
	Text string
}

func NewMock(text string) *Mock {
	if strings.TrimSpace(text) == "" {
		text = DefaultMockTranscript
	}
	return &Mock{Text: text}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Transcribe(ctx context.Context, in Audio) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(in.Data) == 0 {
		return Result{}, audio.ErrEmpty
	}
	conf := 1.0
	return Result{Text: m.Text, Confidence: &conf, LanguageHint: in.Language, Provider: "mock"}, nil
}
