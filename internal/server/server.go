package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/llmgate/internal/api"
	"github.com/gaspardpetit/llmgate/internal/config"
	"github.com/gaspardpetit/llmgate/internal/metrics"
)

// Server bundles the public handler with its metrics registry.
type Server struct {
	Handler  http.Handler
	Registry *prometheus.Registry
}

// New constructs the HTTP handler for the gateway. /metrics is mounted on the
// public router only when cfg.MetricsAddr is empty; otherwise callers serve
// MetricsHandler on their own listener.
func New(cfg config.GatewayConfig, gen api.Generator, v *api.Validator, info api.VersionInfo) *Server {
	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(info.Version, info.BuildSHA, info.BuildDate)

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}
	s := &Server{Handler: r, Registry: preg}
	if cfg.MetricsAddr == "" {
		r.Handle("/metrics", s.MetricsHandler())
	}
	r.Mount("/", api.NewRouter(gen, v, info))
	return s
}

// MetricsHandler exposes the gateway's Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}
