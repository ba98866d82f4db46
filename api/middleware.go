package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/warp/folio-engine/config"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRatePerMinute  = 600
)

// middlewareStack installs the API middleware chain. cfg may be nil.
func middlewareStack(cfg *config.Config, logger *slog.Logger) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := defaultRequestTimeout
	rate := defaultRatePerMinute
	origins := []string{"*"}
	if cfg != nil {
		if cfg.AppRequestTimeout > 0 {
			timeout = cfg.AppRequestTimeout
		}
		if cfg.RateLimitPerMinute > 0 {
			rate = cfg.RateLimitPerMinute
		}
		if len(cfg.CORSOrigins) > 0 {
			origins = cfg.CORSOrigins
		}
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders: []string{"X-Request-Id"},
		}),
		httprate.Limit(rate, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}
