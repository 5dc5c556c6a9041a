package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %s, want 24h", cfg.SessionTTL)
	}
	if cfg.GenerativeMode != "auto" || cfg.StorageType != "local" {
		t.Fatalf("mode/storage = %q/%q", cfg.GenerativeMode, cfg.StorageType)
	}
	want := []string{"whisper", "gemini", "mock"}
	if len(cfg.TranscriberProviders) != len(want) {
		t.Fatalf("TranscriberProviders = %v, want %v", cfg.TranscriberProviders, want)
	}
	for i := range want {
		if cfg.TranscriberProviders[i] != want[i] {
			t.Fatalf("TranscriberProviders = %v, want %v", cfg.TranscriberProviders, want)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("APP_SESSION_TTL", "2h")
	t.Setenv("TRANSCRIBER_PROVIDERS", " Mock , whisper ,")
	t.Setenv("RATE_LIMIT_QPS", "0.5")
	t.Setenv("APP_CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("SessionTTL = %s, want 2h", cfg.SessionTTL)
	}
	if cfg.PublicBaseURL != "http://localhost:9191" {
		t.Fatalf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if len(cfg.TranscriberProviders) != 2 || cfg.TranscriberProviders[0] != "mock" {
		t.Fatalf("TranscriberProviders = %v", cfg.TranscriberProviders)
	}
	if cfg.RateLimitQPS != 0.5 {
		t.Fatalf("RateLimitQPS = %v", cfg.RateLimitQPS)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":        {"APP_SESSION_TTL": "soon"},
		"short ttl":           {"APP_SESSION_TTL": "5s"},
		"bad mode":            {"GENERATIVE_MODE": "openai"},
		"gemini without key":  {"GENERATIVE_MODE": "gemini"},
		"s3 without bucket":   {"STORAGE_TYPE": "s3"},
		"bad storage":         {"STORAGE_TYPE": "ftp"},
		"bad bool":            {"APP_ALLOW_ANY_ORIGIN": "maybe"},
		"negative rate limit": {"RATE_LIMIT_QPS": "-1"},
		"zero upload size":    {"APP_MAX_UPLOAD_BYTES": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %v", env)
			}
		})
	}
}

func TestLoadReadsDotEnvOutsideProduction(t *testing.T) {
	setCoreEnvEmpty(t)
	// godotenv never overrides variables that are already set, even empty.
	_ = os.Unsetenv("APP_METRICS_NAMESPACE")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_METRICS_NAMESPACE=fromfile\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("APP_METRICS_NAMESPACE")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MetricsNamespace != "fromfile" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "fromfile")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_ENV",
		"APP_BIND_ADDR",
		"APP_PUBLIC_BASE_URL",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_TTL",
		"APP_POST_TTL",
		"APP_METRICS_NAMESPACE",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_CORS_ORIGINS",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_MAX_UPLOAD_BYTES",
		"APP_MAX_FILES_PER_UPLOAD",
		"APP_ALLOWED_MIME_TYPES",
		"GENERATIVE_MODE",
		"GEMINI_API_KEY",
		"GEMINI_TEXT_MODEL",
		"GEMINI_IMAGE_MODEL",
		"GEMINI_STT_MODEL",
		"CLASSIFIER_TIMEOUT",
		"CAPTION_TIMEOUT",
		"HASHTAG_TIMEOUT",
		"IMAGE_TIMEOUT",
		"TRANSCRIBER_PROVIDERS",
		"WHISPER_SERVER_URL",
		"WHISPER_TIMEOUT",
		"MOCK_TRANSCRIPT",
		"REDIS_URL",
		"REDIS_KEY_PREFIX",
		"STORAGE_TYPE",
		"UPLOAD_DIR",
		"S3_BUCKET",
		"S3_REGION",
		"S3_ENDPOINT",
		"S3_PUBLIC_BASE_URL",
		"S3_FORCE_PATH_STYLE",
		"RATE_LIMIT_QPS",
		"OAUTH_REDIRECT_BASE",
		"PLATFORMS_FILE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
