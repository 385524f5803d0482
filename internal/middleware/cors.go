package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"coopvote/pkg/logger"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the methods and headers the voting API uses
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// CORS answers preflight requests and echoes allowed origins.
// An empty AllowedOrigins list or a "*" entry allows any origin.
func CORS(config *CORSConfig, logger *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}

	anyOrigin := len(config.AllowedOrigins) == 0
	origins := make(map[string]struct{}, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	// Headers that do not depend on the request
	static := http.Header{}
	setJoined := func(name string, values []string) {
		if len(values) > 0 {
			static.Set(name, strings.Join(values, ", "))
		}
	}
	setJoined("Access-Control-Allow-Methods", config.AllowedMethods)
	setJoined("Access-Control-Allow-Headers", config.AllowedHeaders)
	setJoined("Access-Control-Expose-Headers", config.ExposedHeaders)
	if config.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if config.MaxAge > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, values := range static {
				h[name] = values
			}

			if origin := r.Header.Get("Origin"); origin != "" {
				_, listed := origins[origin]
				if anyOrigin || listed {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				} else {
					logger.WithField("origin", origin).Debug("CORS origin not allowed")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
