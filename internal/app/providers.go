package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/config"
	"github.com/ent0n29/postcraft/internal/generative"
	"github.com/ent0n29/postcraft/internal/imagefx"
	"github.com/ent0n29/postcraft/internal/observability"
	"github.com/ent0n29/postcraft/internal/platform"
	"github.com/ent0n29/postcraft/internal/reliability"
	"github.com/ent0n29/postcraft/internal/voice"
)

type providerSetup struct {
	generative  generative.Providers
	image       generative.ImageTransform
	transcriber *voice.Chain
	detail      string
}

// resolveProviders builds the generative adapters and the transcriber
// chain. The image capability always has the local enhancer behind it: as
// the fallback for a generative editor, or on its own in mock mode.
func resolveProviders(ctx context.Context, cfg config.Config, presets *platform.Registry, metrics *observability.Metrics, logger *zap.Logger) (providerSetup, error) {
	gen, err := generative.NewProviders(ctx, generative.Config{
		Mode:       cfg.GenerativeMode,
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
		Retry:      reliability.DefaultPolicy,
	}, logger)
	if err != nil {
		return providerSetup{}, fmt.Errorf("generative providers init failed: %w", err)
	}

	enhancer := imagefx.NewEnhancer(presets)
	var image generative.ImageTransform = enhancer
	if gen.Name != "mock" {
		image = generative.NewFallbackImage(gen.Image, enhancer, logger)
	}

	chain, err := voice.Build(ctx, voice.Config{
		Providers:      cfg.TranscriberProviders,
		WhisperURL:     cfg.WhisperURL,
		WhisperTimeout: cfg.WhisperTimeout,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModel:    cfg.GeminiSTTModel,
		MockText:       cfg.MockTranscript,
	}, func(from, to string, cause error) {
		metrics.TranscriberSwitched(from, to)
		logger.Warn("transcriber fallback", zap.String("from", from), zap.String("to", to), zap.Error(cause))
	}, logger)
	if err != nil {
		return providerSetup{}, fmt.Errorf("transcriber init failed: %w", err)
	}

	return providerSetup{
		generative:  gen,
		image:       image,
		transcriber: chain,
		detail:      fmt.Sprintf("generative=%s transcriber=%s", gen.Name, chain.Name()),
	}, nil
}
