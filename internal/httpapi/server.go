package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/config"
	"github.com/ent0n29/postcraft/internal/events"
	"github.com/ent0n29/postcraft/internal/logging"
	"github.com/ent0n29/postcraft/internal/observability"
	"github.com/ent0n29/postcraft/internal/orchestrator"
	"github.com/ent0n29/postcraft/internal/ratelimit"
	"github.com/ent0n29/postcraft/internal/session"
	"github.com/ent0n29/postcraft/internal/social"
	"github.com/ent0n29/postcraft/internal/storage"
	"github.com/ent0n29/postcraft/internal/voice"
)

// Orchestrator runs one content-generation request.
type Orchestrator interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

type Deps struct {
	Sessions     *session.Service
	Orchestrator Orchestrator
	Media        storage.MediaStore
	Transcriber  voice.Transcriber
	Hub          *events.Hub
	Social       *social.Connector
	Limiter      ratelimit.Limiter
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// MediaRoot, when set, is served under /media/.
	MediaRoot string
}

type Server struct {
	cfg          config.Config
	sessions     *session.Service
	orchestrator Orchestrator
	media        storage.MediaStore
	transcriber  voice.Transcriber
	hub          *events.Hub
	social       *social.Connector
	limiter      ratelimit.Limiter
	metrics      *observability.Metrics
	logger       *zap.Logger
	mediaRoot    string
	allowedMime  map[string]struct{}
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, m := range cfg.AllowedMimeTypes {
		allowed[strings.ToLower(m)] = struct{}{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.MaxFilesPerCall <= 0 {
		cfg.MaxFilesPerCall = 10
	}
	hub := deps.Hub
	if hub == nil {
		hub = events.NewHub(0, deps.Logger)
	}
	return &Server{
		cfg:          cfg,
		sessions:     deps.Sessions,
		orchestrator: deps.Orchestrator,
		media:        deps.Media,
		transcriber:  deps.Transcriber,
		hub:          hub,
		social:       deps.Social,
		limiter:      deps.Limiter,
		metrics:      deps.Metrics,
		logger:       logging.OrNop(deps.Logger),
		mediaRoot:    deps.MediaRoot,
		allowedMime:  allowed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg),
		},
	}
}

// originChecker allows same-origin browsers, configured CORS origins and
// clients that send no Origin header.
func originChecker(cfg config.Config) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if cfg.AllowAnyOrigin {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		for _, o := range cfg.CORSOrigins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	if s.mediaRoot != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaRoot))))
	}

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter, ratelimit.ClientIP, s.logger))
		}
		r.Route("/v1/sessions/{sessionId}", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Post("/edit", s.handleEdit)
			r.Post("/process", s.handleProcess)
			r.Get("/sync", s.handleSync)
			r.Get("/download", s.handleDownload)
			r.Get("/ws", s.handleSessionWS)
			r.Post("/posts", s.handleSavePost)
			r.Delete("/", s.handleDeleteSession)
		})
		r.Get("/v1/posts", s.handleListPosts)
		r.Delete("/v1/posts/{postId}", s.handleDeletePost)
		r.Get("/v1/auth/{platform}/login", s.handleAuthLogin)
	})

	var h http.Handler = r
	if len(s.cfg.CORSOrigins) > 0 || s.cfg.AllowAnyOrigin {
		origins := s.cfg.CORSOrigins
		if s.cfg.AllowAnyOrigin {
			origins = []string{"*"}
		}
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		)(h)
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.sessions.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "session_store": "down"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "session_store": "up"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Latency())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach
// the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.HTTPRequest(route, r.Method, strconv.Itoa(rec.status))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("handler panic",
					zap.Any("panic", v),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
				respondError(w, errInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
