package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	"github.com/cabinetworks/mto/internal/observability"
	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the global middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// RateLimiter builds an httprate limiter keyed by actor, falling back to IP.
// With a Redis client the counters are shared by every API instance and each
// window key expires on its own; without one httprate keeps them in process.
func RateLimiter(client redis.UniversalClient, prefix string, requests int, window time.Duration) func(http.Handler) http.Handler {
	opts := []httprate.Option{
		httprate.WithKeyFuncs(actorOrIPKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		}),
	}
	if client != nil {
		opts = append(opts, httprate.WithLimitCounter(shared.NewRedisLimitCounter(client, prefix)))
	}
	return httprate.Limit(requests, window, opts...)
}

func actorOrIPKey(r *http.Request) (string, error) {
	if id := shared.ActorID(r.Context()); id != 0 {
		return "actor:" + strconv.FormatInt(id, 10), nil
	}
	return httprate.KeyByIP(r)
}

// ActorMiddleware turns the identity forwarded by the auth gateway into a
// shared.Actor. Requests without a valid actor id are rejected with 401.
func ActorMiddleware(actorHeader, permissionsHeader string) func(http.Handler) http.Handler {
	if actorHeader == "" {
		actorHeader = "X-Actor-ID"
	}
	if permissionsHeader == "" {
		permissionsHeader = "X-Actor-Permissions"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(actorHeader)), 10, 64)
			if err != nil || id <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "verified actor identity required")
				return
			}
			actor := &shared.Actor{ID: id, Permissions: splitPermissions(r.Header.Get(permissionsHeader))}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func splitPermissions(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
