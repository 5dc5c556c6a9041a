package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/logging"
)

type Config struct {
	Providers      []string
	WhisperURL     string
	WhisperTimeout time.Duration
	GeminiAPIKey   string
	GeminiModel    string
	MockText       string
}

// Build assembles a Chain from cfg.Providers in order. Providers whose
// settings are missing are skipped with a log line; an unknown name is an
// error.
func Build(ctx context.Context, cfg Config, onFallback FallbackFunc, logger *zap.Logger) (*Chain, error) {
	logger = logging.OrNop(logger)
	names := cfg.Providers
	if len(names) == 0 {
		names = []string{"whisper", "gemini", "mock"}
	}
	list := make([]Transcriber, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "whisper":
			if strings.TrimSpace(cfg.WhisperURL) == "" {
				logger.Info("transcriber skipped: no whisper server url", zap.String("provider", name))
				continue
			}
			w, err := NewWhisper(cfg.WhisperURL, cfg.WhisperTimeout)
			if err != nil {
				return nil, err
			}
			list = append(list, w)
		case "gemini", "genai":
			if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
				logger.Info("transcriber skipped: no gemini api key", zap.String("provider", name))
				continue
			}
			g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			list = append(list, g)
		case "mock":
			list = append(list, NewMock(cfg.MockText))
		default:
			return nil, fmt.Errorf("unsupported transcriber %q", raw)
		}
	}
	return NewChain(onFallback, list...)
}
