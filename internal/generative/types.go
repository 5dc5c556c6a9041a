package generative

import (
	"context"

	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/memory"
)

// Media is one binary input handed to a generative service.
type Media struct {
	Data     []byte
	MimeType string
}

// MediaContext describes what the post contains, for prompt context.
type MediaContext struct {
	Images     []Media
	HasVideo   bool
	MediaCount int
	Platform   string
	Theme      string
	Mood       string
	Style      string
}

type CaptionRequest struct {
	Instruction string
	Previous    string
	Media       MediaContext
	History     []memory.Turn
}

type CaptionResult struct {
	Caption    string
	Variations []string
}

type HashtagRequest struct {
	Instruction string
	Caption     string
	Previous    []string
	Media       MediaContext
	History     []memory.Turn
	TargetCount int
	FormatLimit int
}

type HashtagResult struct {
	Hashtags  []string
	Formatted string
}

type ImageRequest struct {
	Data        []byte
	MimeType    string
	Instruction string
	Platform    string
}

type ImageResult struct {
	Data       []byte
	MimeType   string
	AppliedOps []string
	Provider   string
	Fallback   bool
}

type TextGenerator interface {
	GenerateCaption(ctx context.Context, req CaptionRequest) (CaptionResult, error)
}

type TagGenerator interface {
	GenerateHashtags(ctx context.Context, req HashtagRequest) (HashtagResult, error)
}

type ImageTransform interface {
	Apply(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// Providers bundles the adapters one deployment uses.
type Providers struct {
	Name       string
	Text       TextGenerator
	Tags       TagGenerator
	Image      ImageTransform
	Classifier intent.Model
}
