package auth

import (
	"context"
	"net/http"
	"strings"

	"roundtable/pkg/logger"
)

// SecConfig drives authentication, CORS and rate limiting behavior.
type SecConfig struct {
	AllowedOrigins []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
}

type ctxIdentityKey struct{}

// IdentityFromContext returns the caller identity or empty string.
func IdentityFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxIdentityKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Middleware resolves caller identity, enforces API keys and CORS, and
// applies the fixed-window rate limiter keyed by (route, identity).
func Middleware(cfg SecConfig, limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			if origin := r.Header.Get("Origin"); origin != "" {
				if allowed := corsAllowed(cfg.AllowedOrigins, origin); allowed != "" {
					w.Header().Set("Access-Control-Allow-Origin", allowed)
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key, X-Identity")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				}
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			// API access requires a key when any are configured.
			if len(cfg.BackendKeys) > 0 || len(cfg.FrontendKeys) > 0 {
				key := strings.TrimSpace(r.Header.Get("X-Api-Key"))
				if _, ok := cfg.BackendKeys[key]; !ok {
					if _, ok := cfg.FrontendKeys[key]; !ok {
						logger.Warn("unauthorized_request", "path", r.URL.Path, "remote", r.RemoteAddr)
						http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
						return
					}
				}
			}

			identity := strings.TrimSpace(r.Header.Get("X-Identity"))
			if identity == "" {
				identity = r.RemoteAddr
			}
			if limiter != nil && !limiter.Allow(r.URL.Path, identity) {
				logger.Warn("rate_limited", "path", r.URL.Path, "identity", identity)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			ctx := context.WithValue(r.Context(), ctxIdentityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func corsAllowed(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
