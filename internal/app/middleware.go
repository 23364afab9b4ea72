package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/gstbilling/internal/observability"
	"github.com/odyssey-erp/gstbilling/internal/platform/httpx"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

const (
	// TenantHeader carries the authenticated business user id.
	TenantHeader = "X-Tenant-ID"
	// ActorHeader carries the acting user label recorded as created_by.
	ActorHeader = "X-Actor"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the API middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimit > 0 {
			limit = cfg.Config.RateLimit
		}
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
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(tenantOrIPKey)),
		TenantContext(cfg.Logger),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// TenantContext copies the tenant and actor headers into the request context.
// A malformed tenant header is rejected; a missing one is left for handlers
// to refuse.
func TenantContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if raw := strings.TrimSpace(r.Header.Get(TenantHeader)); raw != "" {
				tenantID, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || tenantID <= 0 {
					logger.Warn("invalid tenant header", slog.String("path", r.URL.Path))
					httpx.RespondError(w, httpx.ErrTenantRequired)
					return
				}
				ctx = shared.ContextWithTenant(ctx, tenantID)
			}
			if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
				ctx = shared.ContextWithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantOrIPKey(r *http.Request) (string, error) {
	if tenant := r.Header.Get(TenantHeader); tenant != "" {
		return "tenant:" + tenant, nil
	}
	return httprate.KeyByIP(r)
}
