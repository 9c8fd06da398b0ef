package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AuthConfig configures bearer-token authentication for the gateway's own
// HTTP surface (distinct from any upstream provider credentials).
type AuthConfig struct {
	Enabled   bool
	SkipPaths []string
	Tokens    []string
}

func (c AuthConfig) skips(path string) bool {
	for _, p := range c.SkipPaths {
		if p == path {
			return true
		}
	}
	return false
}

func (c AuthConfig) accepts(token string) bool {
	for _, t := range c.Tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			return true
		}
	}
	return false
}

// AuthMiddleware rejects requests missing a valid "Bearer <token>"
// Authorization header, unless auth is disabled or the path is skipped.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skips(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" || !cfg.accepts(token) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfig mirrors the subset of cors settings the gateway's own API
// surface needs.
type CORSConfig struct {
	Enabled          bool
	AllowAllOrigins  bool
	AllowCredentials bool
	AllowMethods     []string
	AllowHeaders     []string
	Allowlist        []string
	MaxAge           time.Duration
}

// CORSMiddleware applies an allowlist-based CORS policy; unlike the
// teacher's development-only reflect-any-origin middleware, an explicit
// origin allowlist is required unless AllowAllOrigins is set.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		allowed := make(map[string]bool, len(cfg.Allowlist))
		for _, o := range cfg.Allowlist {
			allowed[o] = true
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (cfg.AllowAllOrigins || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogMiddleware logs one line per request at debug level, matching
// the teacher's structured-logging posture without pulling in its
// OpenTelemetry request-ID propagation.
func RequestLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
		})
	}
}
