package generative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/reliability"
)

// Config controls provider construction.
type Config struct {
	Mode       string
	APIKey     string
	TextModel  string
	ImageModel string
	Retry      reliability.Policy
}

// NewProviders builds the adapter bundle for cfg.Mode: "gemini" requires an
// API key, "mock" is always local and "auto" picks gemini when a key is set.
func NewProviders(ctx context.Context, cfg Config, logger *zap.Logger) (Providers, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return mockProviders(), nil
		}
		return geminiProviders(ctx, cfg, logger)
	case "gemini", "genai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return Providers{}, errors.New("gemini API key is required for gemini mode")
		}
		return geminiProviders(ctx, cfg, logger)
	case "mock":
		return mockProviders(), nil
	default:
		return Providers{}, fmt.Errorf("unsupported generative provider mode %q", cfg.Mode)
	}
}

func geminiProviders(ctx context.Context, cfg Config, logger *zap.Logger) (Providers, error) {
	g, err := NewGemini(ctx, GeminiConfig{
		APIKey:     cfg.APIKey,
		TextModel:  cfg.TextModel,
		ImageModel: cfg.ImageModel,
		Retry:      cfg.Retry,
	}, logger)
	if err != nil {
		return Providers{}, err
	}
	return Providers{Name: "gemini", Text: g, Tags: g, Image: g, Classifier: g}, nil
}

func mockProviders() Providers {
	m := NewMock()
	return Providers{Name: "mock", Text: m, Tags: m, Image: m, Classifier: m}
}

// FallbackImage attempts a primary transform first and falls back on error.
type FallbackImage struct {
	primary  ImageTransform
	fallback ImageTransform
	logger   *zap.Logger
}

func NewFallbackImage(primary, fallback ImageTransform, logger *zap.Logger) *FallbackImage {
	return &FallbackImage{primary: primary, fallback: fallback, logger: logging.OrNop(logger)}
}

func (f *FallbackImage) Apply(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if f.primary == nil {
		return f.applyFallback(ctx, req, errors.New("no primary image transform"))
	}
	res, err := f.primary.Apply(ctx, req)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil || f.fallback == nil {
		return ImageResult{}, err
	}
	f.logger.Warn("image transform failed; using local enhancement", zap.Error(err))
	return f.applyFallback(ctx, req, err)
}

func (f *FallbackImage) applyFallback(ctx context.Context, req ImageRequest, cause error) (ImageResult, error) {
	if f.fallback == nil {
		return ImageResult{}, cause
	}
	res, err := f.fallback.Apply(ctx, req)
	if err != nil {
		return ImageResult{}, fmt.Errorf("primary: %v; fallback: %w", cause, err)
	}
	res.Fallback = true
	return res, nil
}
