package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/logging"
)

// KeyFunc derives the bucket key for a request.
type KeyFunc func(*http.Request) string

// ClientIP keys requests by remote address. Run chi's RealIP middleware
// first when serving behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429. Limiter errors fail
// open.
func Middleware(l Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			if !d.Allowed {
				secs := int(d.RetryAfter.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "too many requests, retry later",
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
