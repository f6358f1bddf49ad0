package http

import (
	"net/http"
	"strings"

	"github.com/vlourenco/atalho/internal/config"
	"github.com/vlourenco/atalho/internal/infrastructure/telemetry"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/transport/http/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var spanNames = map[string]string{
	"GET /health":                    "health",
	"GET /metrics":                   "metrics",
	"POST /api/links":                "links.create",
	"PATCH /api/links/{address}":     "links.update",
	"DELETE /api/links/{address}":    "links.delete",
	"GET /api/links/{address}/stats": "links.stats",
	"POST /api/links/{address}/ban":  "links.ban",
	"GET /{$}":                       "redirect.home",
	"GET /{address}":                 "redirect",
	"POST /{address}/protected":      "redirect.protected",
}

type RouterOptions struct {
	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
	}
}

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	LinkService *links.Service
	Resolver    *links.Resolver
	Users       links.UserRepository
	// CreateLimiter guards the create route; nil disables the fixed window.
	CreateLimiter *middleware.RedisFixedWindowLimiter
}

func NewRouter(cfg *config.Config, deps RouterDeps) http.Handler {
	return NewRouterWithOptions(cfg, deps, DefaultRouterOptions())
}

func NewRouterWithOptions(cfg *config.Config, deps RouterDeps, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler()
	linksHandler := NewLinksHandler(cfg, deps.LinkService)
	redirectHandler := NewRedirectHandler(cfg, deps.Resolver)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	identity := middleware.Identity(deps.Users)

	createMiddlewares := []func(http.Handler) http.Handler{identity}
	if deps.CreateLimiter != nil {
		createMiddlewares = append(createMiddlewares, middleware.RateLimitMiddleware(deps.CreateLimiter))
	}

	mux.Handle("POST /api/links", middleware.Chain(
		http.HandlerFunc(linksHandler.Create),
		createMiddlewares...,
	))
	mux.Handle("PATCH /api/links/{address}", middleware.Chain(
		http.HandlerFunc(linksHandler.Update),
		identity,
	))
	mux.Handle("DELETE /api/links/{address}", middleware.Chain(
		http.HandlerFunc(linksHandler.Delete),
		identity,
	))
	mux.Handle("GET /api/links/{address}/stats", middleware.Chain(
		http.HandlerFunc(linksHandler.Stats),
		identity,
	))
	// Admin keys are standalone credentials, not stored users, so the ban
	// route skips the identity middleware.
	mux.Handle("POST /api/links/{address}/ban", middleware.Chain(
		http.HandlerFunc(linksHandler.Ban),
		middleware.APIKeyMiddleware(cfg.Security.AdminAPIKeys),
	))

	mux.HandleFunc("GET /{$}", redirectHandler.Homepage)
	mux.HandleFunc("GET /{address}", redirectHandler.Redirect)
	mux.HandleFunc("POST /{address}/protected", redirectHandler.Protected)

	var innerHandler http.Handler = mux
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			key := r.Method + " " + r.Pattern
			if name, ok := spanNames[key]; ok {
				return name
			}
			if r.Pattern != "" {
				return r.Pattern
			}
			path := strings.TrimSpace(r.URL.Path)
			if path == "" {
				path = "/"
			}
			return path
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, cfg.App.Name, otelOptions...)
}
