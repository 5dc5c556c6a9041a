// Package imagefx applies deterministic, local image adjustments. It backs
// the image capability when no generative editor is reachable.
package imagefx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"

	"github.com/disintegration/imaging"

	"github.com/ent0n29/postcraft/internal/generative"
	"github.com/ent0n29/postcraft/internal/platform"
)

// ErrUnsupported is returned for inputs the decoder cannot read.
var ErrUnsupported = errors.New("unsupported image format")

type op struct {
	name  string
	match *regexp.Regexp
	apply func(image.Image) image.Image
}

var instructionOps = []op{
	{"brighten", regexp.MustCompile(`(?i)\b(?:brighten|brighter|lighter|lighten)\b`), func(img image.Image) image.Image { return imaging.AdjustBrightness(img, 12) }},
	{"darken", regexp.MustCompile(`(?i)\b(?:darken|darker|moodier)\b`), func(img image.Image) image.Image { return imaging.AdjustBrightness(img, -12) }},
	{"saturate", regexp.MustCompile(`(?i)\b(?:saturat\w*|vivid|vibrant|pop)\b`), func(img image.Image) image.Image { return imaging.AdjustSaturation(img, 25) }},
	{"grayscale", regexp.MustCompile(`(?i)\b(?:grayscale|greyscale|black and white|monochrome|b&w)\b`), func(img image.Image) image.Image { return imaging.Grayscale(img) }},
	{"blur", regexp.MustCompile(`(?i)\b(?:blur|soften|dreamy)\b`), func(img image.Image) image.Image { return imaging.Blur(img, 1.5) }},
	{"warm", regexp.MustCompile(`(?i)\b(?:warm|warmer|golden)\b`), func(img image.Image) image.Image { return imaging.AdjustGamma(img, 1.08) }},
}

// Enhancer fits images to the target platform's bounds and applies a
// mild contrast and sharpening pass plus any adjustments named in the
// instruction.
type Enhancer struct {
	presets *platform.Registry
}

func NewEnhancer(presets *platform.Registry) *Enhancer {
	if presets == nil {
		presets = platform.Builtin()
	}
	return &Enhancer{presets: presets}
}

func (e *Enhancer) Apply(ctx context.Context, req generative.ImageRequest) (generative.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return generative.ImageResult{}, err
	}
	img, err := imaging.Decode(bytes.NewReader(req.Data), imaging.AutoOrientation(true))
	if err != nil {
		return generative.ImageResult{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	preset := e.presets.Get(req.Platform)
	ops := make([]string, 0, 4)
	b := img.Bounds()
	if b.Dx() > preset.ImageMaxWidth || b.Dy() > preset.ImageMaxHeight {
		img = imaging.Fit(img, preset.ImageMaxWidth, preset.ImageMaxHeight, imaging.Lanczos)
		ops = append(ops, fmt.Sprintf("fit:%dx%d", preset.ImageMaxWidth, preset.ImageMaxHeight))
	}
	for _, o := range instructionOps {
		if o.match.MatchString(req.Instruction) {
			img = o.apply(img)
			ops = append(ops, o.name)
		}
	}
	img = imaging.AdjustContrast(img, 6)
	img = imaging.Sharpen(img, 0.6)
	ops = append(ops, "contrast", "sharpen")

	if err := ctx.Err(); err != nil {
		return generative.ImageResult{}, err
	}

	var buf bytes.Buffer
	mime := "image/jpeg"
	if req.MimeType == "image/png" {
		mime = "image/png"
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(preset.JPEGQuality))
	}
	if err != nil {
		return generative.ImageResult{}, fmt.Errorf("encode image: %w", err)
	}
	return generative.ImageResult{
		Data:       buf.Bytes(),
		MimeType:   mime,
		AppliedOps: ops,
		Provider:   "imagefx",
	}, nil
}
