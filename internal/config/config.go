package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the post-editing service.
type Config struct {
	Env              string
	BindAddr         string
	PublicBaseURL    string
	ShutdownTimeout  time.Duration
	SessionTTL       time.Duration
	PostTTL          time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	CORSOrigins    []string
	AllowAnyOrigin bool

	MaxUploadBytes   int64
	MaxFilesPerCall  int
	AllowedMimeTypes []string

	GenerativeMode   string
	GeminiAPIKey     string
	GeminiTextModel  string
	GeminiImageModel string
	GeminiSTTModel   string

	ClassifierTimeout time.Duration
	CaptionTimeout    time.Duration
	HashtagTimeout    time.Duration
	ImageTimeout      time.Duration

	TranscriberProviders []string
	WhisperURL           string
	WhisperTimeout       time.Duration
	MockTranscript       string

	RedisURL    string
	RedisPrefix string

	StorageType     string
	UploadDir       string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	S3PathStyle     bool

	RateLimitQPS float64

	OAuthRedirectBase     string
	InstagramClientID     string
	InstagramClientSecret string
	LinkedInClientID      string
	LinkedInClientSecret  string
	XClientID             string
	XClientSecret         string

	PlatformsFile string
}

// Load reads an optional .env file (outside production), then environment
// variables, and applies safe defaults.
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Env:              envOrDefault("APP_ENV", "development"),
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "postcraft"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "json"),
		CORSOrigins:      listFromEnv("APP_CORS_ORIGINS", nil),
		AllowedMimeTypes: listFromEnv("APP_ALLOWED_MIME_TYPES", []string{
			"image/jpeg", "image/png", "image/webp", "image/gif",
			"video/mp4", "video/quicktime",
			"audio/wav", "audio/x-wav", "audio/webm", "audio/mpeg", "audio/ogg", "audio/mp4", "audio/pcm",
		}),

		GenerativeMode:   strings.ToLower(envOrDefault("GENERATIVE_MODE", "auto")),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		GeminiTextModel:  envOrDefault("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: envOrDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiSTTModel:   envOrDefault("GEMINI_STT_MODEL", "gemini-2.5-flash"),

		TranscriberProviders: listFromEnv("TRANSCRIBER_PROVIDERS", []string{"whisper", "gemini", "mock"}),
		WhisperURL:           stringsTrimSpace("WHISPER_SERVER_URL"),
		MockTranscript:       stringsTrimSpace("MOCK_TRANSCRIPT"),

		RedisURL:    stringsTrimSpace("REDIS_URL"),
		RedisPrefix: envOrDefault("REDIS_KEY_PREFIX", "postcraft:"),

		StorageType:     strings.ToLower(envOrDefault("STORAGE_TYPE", "local")),
		UploadDir:       envOrDefault("UPLOAD_DIR", "data/media"),
		S3Bucket:        stringsTrimSpace("S3_BUCKET"),
		S3Region:        envOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:      stringsTrimSpace("S3_ENDPOINT"),
		S3PublicBaseURL: stringsTrimSpace("S3_PUBLIC_BASE_URL"),

		InstagramClientID:     stringsTrimSpace("INSTAGRAM_CLIENT_ID"),
		InstagramClientSecret: stringsTrimSpace("INSTAGRAM_CLIENT_SECRET"),
		LinkedInClientID:      stringsTrimSpace("LINKEDIN_CLIENT_ID"),
		LinkedInClientSecret:  stringsTrimSpace("LINKEDIN_CLIENT_SECRET"),
		XClientID:             stringsTrimSpace("X_CLIENT_ID"),
		XClientSecret:         stringsTrimSpace("X_CLIENT_SECRET"),

		PlatformsFile: stringsTrimSpace("PLATFORMS_FILE"),

		ShutdownTimeout:   15 * time.Second,
		SessionTTL:        24 * time.Hour,
		MaxUploadBytes:    25 << 20,
		MaxFilesPerCall:   10,
		ClassifierTimeout: 8 * time.Second,
		CaptionTimeout:    45 * time.Second,
		HashtagTimeout:    45 * time.Second,
		ImageTimeout:      90 * time.Second,
		WhisperTimeout:    60 * time.Second,
		RateLimitQPS:      5,
	}
	cfg.PublicBaseURL = strings.TrimRight(envOrDefault("APP_PUBLIC_BASE_URL", "http://localhost"+portOf(cfg.BindAddr)), "/")
	cfg.OAuthRedirectBase = envOrDefault("OAUTH_REDIRECT_BASE", cfg.PublicBaseURL)

	var err error
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SESSION_TTL", &cfg.SessionTTL},
		{"APP_POST_TTL", &cfg.PostTTL},
		{"CLASSIFIER_TIMEOUT", &cfg.ClassifierTimeout},
		{"CAPTION_TIMEOUT", &cfg.CaptionTimeout},
		{"HASHTAG_TIMEOUT", &cfg.HashtagTimeout},
		{"IMAGE_TIMEOUT", &cfg.ImageTimeout},
		{"WHISPER_TIMEOUT", &cfg.WhisperTimeout},
	} {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}
	maxUpload, err := intFromEnv("APP_MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	cfg.MaxFilesPerCall, err = intFromEnv("APP_MAX_FILES_PER_UPLOAD", cfg.MaxFilesPerCall)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitQPS, err = floatFromEnv("RATE_LIMIT_QPS", cfg.RateLimitQPS)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.S3PathStyle, err = boolFromEnv("S3_FORCE_PATH_STYLE", cfg.S3PathStyle)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("APP_SESSION_TTL must be at least 1m")
	}
	if c.PostTTL < 0 {
		return fmt.Errorf("APP_POST_TTL must be >= 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxFilesPerCall <= 0 {
		return fmt.Errorf("APP_MAX_FILES_PER_UPLOAD must be positive")
	}
	if c.RateLimitQPS < 0 {
		return fmt.Errorf("RATE_LIMIT_QPS must be >= 0")
	}
	switch c.GenerativeMode {
	case "auto", "gemini", "genai", "mock":
	default:
		return fmt.Errorf("GENERATIVE_MODE must be one of auto, gemini, mock")
	}
	if c.GenerativeMode == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when GENERATIVE_MODE=gemini")
	}
	switch c.StorageType {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE must be local or s3")
	}
	if len(c.TranscriberProviders) == 0 {
		return fmt.Errorf("TRANSCRIBER_PROVIDERS must name at least one provider")
	}
	return nil
}

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
