package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/config"
	"github.com/ent0n29/postcraft/internal/events"
	"github.com/ent0n29/postcraft/internal/httpapi"
	"github.com/ent0n29/postcraft/internal/intent"
	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/observability"
	"github.com/ent0n29/postcraft/internal/orchestrator"
	"github.com/ent0n29/postcraft/internal/platform"
	"github.com/ent0n29/postcraft/internal/protocol"
	"github.com/ent0n29/postcraft/internal/ratelimit"
	"github.com/ent0n29/postcraft/internal/session"
	"github.com/ent0n29/postcraft/internal/social"
	"github.com/ent0n29/postcraft/internal/storage"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Service
	Orchestrator *orchestrator.Orchestrator
	Metrics      *observability.Metrics
	Hub          *events.Hub
	// StoreMode is "redis" or "memory".
	StoreMode string
	Detail    string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	logger = logging.OrNop(logger)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	presets := platform.Builtin()
	if cfg.PlatformsFile != "" {
		p, err := platform.Load(cfg.PlatformsFile)
		if err != nil {
			return nil, fmt.Errorf("platform presets: %w", err)
		}
		presets = p
	}

	media, mediaRoot, err := buildMediaStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media store init failed: %w", err)
	}

	hub := events.NewHub(events.DefaultBuffer, logger)
	hub.OnDrop(func(string) { metrics.WSMessage("dropped", "hub") })

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	store, limiter, storeMode, err := buildSessionStore(ctx, janitorCtx, cfg, expireNotifier(hub, metrics, logger), logger)
	if err != nil {
		stopJanitor()
		hub.Close()
		return nil, err
	}

	providers, err := resolveProviders(ctx, cfg, presets, metrics, logger)
	if err != nil {
		stopJanitor()
		hub.Close()
		_ = store.Close()
		return nil, err
	}

	sessions := session.NewService(session.Config{TTL: cfg.SessionTTL, PostTTL: cfg.PostTTL}, store, media, metrics, logger)
	orch := orchestrator.New(orchestrator.Config{
		Timeouts: orchestrator.Timeouts{
			Caption:  cfg.CaptionTimeout,
			Hashtags: cfg.HashtagTimeout,
			Image:    cfg.ImageTimeout,
		},
	}, orchestrator.Deps{
		Classifier: intent.NewClassifier(providers.generative.Classifier, cfg.ClassifierTimeout, logger),
		Text:       providers.generative.Text,
		Tags:       providers.generative.Tags,
		Image:      providers.image,
		Media:      media,
		Presets:    presets,
		Metrics:    metrics,
		Logger:     logger,
	})

	connector := social.NewConnector(cfg.OAuthRedirectBase, map[string]social.Credentials{
		"instagram": {ClientID: cfg.InstagramClientID, ClientSecret: cfg.InstagramClientSecret},
		"linkedin":  {ClientID: cfg.LinkedInClientID, ClientSecret: cfg.LinkedInClientSecret},
		"x":         {ClientID: cfg.XClientID, ClientSecret: cfg.XClientSecret},
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:     sessions,
		Orchestrator: orch,
		Media:        media,
		Transcriber:  providers.transcriber,
		Hub:          hub,
		Social:       connector,
		Limiter:      limiter,
		Metrics:      metrics,
		Logger:       logger,
		MediaRoot:    mediaRoot,
	})

	cleanup := func() error {
		stopJanitor()
		hub.Close()
		return store.Close()
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orch,
		Metrics:      metrics,
		Hub:          hub,
		StoreMode:    storeMode,
		Detail:       providers.detail,
		Cleanup:      cleanup,
	}, nil
}

// buildMediaStore returns the configured store and, for local storage, the
// directory the API serves under /media/.
func buildMediaStore(ctx context.Context, cfg config.Config) (storage.MediaStore, string, error) {
	switch cfg.StorageType {
	case "s3":
		s, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			PublicBaseURL:  cfg.S3PublicBaseURL,
			ForcePathStyle: cfg.S3PathStyle,
		})
		return s, "", err
	case "", "local":
		l, err := storage.NewLocal(cfg.UploadDir, cfg.PublicBaseURL+"/media")
		if err != nil {
			return nil, "", err
		}
		return l, l.Root(), nil
	default:
		return nil, "", fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

// expireNotifier handles in-memory session expiry: metrics, a log line and
// a final StatusExpired snapshot to live subscribers before their streams
// close.
func expireNotifier(hub *events.Hub, metrics *observability.Metrics, logger *zap.Logger) func(key string) {
	logger = logging.OrNop(logger)
	return func(key string) {
		id, ok := session.IsSessionKey(key)
		if !ok {
			return
		}
		metrics.SessionEvent("expired")
		metrics.SessionClosed()
		logger.Info("session expired", zap.String("session_id", id))
		hub.Publish(id, protocol.NewSessionExpired(id))
		hub.CloseSession(id)
	}
}

// buildSessionStore prefers Redis when configured. The in-memory store runs
// a janitor until janitorCtx ends and calls onExpire for each reclaimed key.
// Redis expires keys silently.
func buildSessionStore(ctx, janitorCtx context.Context, cfg config.Config, onExpire func(key string), logger *zap.Logger) (session.Store, ratelimit.Limiter, string, error) {
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rs, err := session.NewRedisStore(pingCtx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, "", fmt.Errorf("redis session store init failed: %w", err)
		}
		var limiter ratelimit.Limiter
		if cfg.RateLimitQPS > 0 {
			limiter = ratelimit.NewRedis(rs.Client(), cfg.RedisPrefix+"rate_limit:", cfg.RateLimitQPS)
		}
		return rs, limiter, "redis", nil
	}

	ms := session.NewMemoryStore()
	ms.SetExpireHook(onExpire)
	ms.StartJanitor(janitorCtx, 30*time.Second)
	logger.Warn("REDIS_URL not set; sessions are kept in process memory")

	var limiter ratelimit.Limiter
	if cfg.RateLimitQPS > 0 {
		limiter = ratelimit.NewMemory(cfg.RateLimitQPS)
	}
	return ms, limiter, "memory", nil
}
