package imagefx

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/postcraft/internal/generative"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEnhanceFitsPlatformBounds(t *testing.T) {
	e := NewEnhancer(nil)
	res, err := e.Apply(context.Background(), generative.ImageRequest{
		Data:        testPNG(t, 2000, 1000),
		MimeType:    "image/jpeg",
		Instruction: "make it brighter",
		Platform:    "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", res.MimeType)
	assert.Contains(t, res.AppliedOps, "fit:1600x900")
	assert.Contains(t, res.AppliedOps, "brighten")

	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 1600)
	assert.LessOrEqual(t, cfg.Height, 900)
}

func TestEnhanceKeepsPNG(t *testing.T) {
	res, err := NewEnhancer(nil).Apply(context.Background(), generative.ImageRequest{Data: testPNG(t, 40, 30), MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, []string{"contrast", "sharpen"}, res.AppliedOps)
}

func TestEnhanceRejectsGarbage(t *testing.T) {
	_, err := NewEnhancer(nil).Apply(context.Background(), generative.ImageRequest{Data: []byte("not an image"), MimeType: "image/jpeg"})
	assert.True(t, errors.Is(err, ErrUnsupported))
}
