package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/config"
	"github.com/benvon/gtd/internal/handlers"
	"github.com/benvon/gtd/internal/middleware"
	"github.com/benvon/gtd/internal/services/token"
)

const (
	serviceName    = "gtd-api"
	requestTimeout = 30 * time.Second
)

// registrar is implemented by every resource handler
type registrar interface {
	RegisterRoutes(r *mux.Router)
}

// resource mounts a handler under /api/<prefix>
type resource struct {
	prefix  string
	handler registrar
}

// routerDeps is everything newRouter needs. Redis and Verifier may be nil.
type routerDeps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Redis     *redis.Client
	Verifier  *token.Manager
	Tracing   bool
	Health    *handlers.HealthChecker
	OpenAPI   *handlers.OpenAPIHandler
	Calendar  *handlers.CalendarHandler
	Resources []resource
}

func newRouter(d routerDeps) (*mux.Router, error) {
	cfg, logger := d.Config, d.Logger
	r := mux.NewRouter()

	// Middleware registered first runs outermost
	if d.Tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendOrigins()))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Audit(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	rateLimit, err := middleware.RateLimit(d.Redis, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limiter: %w", err)
	}

	// Public routes
	r.HandleFunc("/healthz", d.Health.HealthCheck).Methods("GET")
	r.HandleFunc("/version", d.Health.VersionInfo).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	d.OpenAPI.RegisterRoutes(r)
	if d.Calendar != nil {
		callback := r.PathPrefix("/api/calendar").Subrouter()
		callback.Use(rateLimit)
		d.Calendar.RegisterCallback(callback)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.Verifier, logger))
	api.Use(rateLimit)
	for _, res := range d.Resources {
		res.handler.RegisterRoutes(api.PathPrefix("/" + res.prefix).Subrouter())
	}

	// Preflight requests are answered by the CORS middleware; this route only makes them match
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}
