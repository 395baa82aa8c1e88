// Package httpapi is a thin, optional HTTP surface over the orchestrator
// library. spec.md §6 treats orchestrator.GetCompletion/HealthCheck as the
// primary interface; this package only translates fasthttp requests into
// that call and a JSON envelope back. Grounded on proxy/router.go's
// router+middleware wiring and proxy/gateway.go's dispatchChat request flow,
// generalized from a fixed OpenAI-compatible chat shape to the orchestrator's
// six request kinds.
package httpapi

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
	"github.com/nulpointcorp/ai-orchestrator/internal/telemetry"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch        *orchestrator.Orchestrator
	metrics     *telemetry.Registry // optional
	corsOrigins []string
}

// New builds a Server. metrics may be nil (disables /metrics).
func New(orch *orchestrator.Orchestrator, metrics *telemetry.Registry, corsOrigins []string) *Server {
	return &Server{orch: orch, metrics: metrics, corsOrigins: corsOrigins}
}

// Start starts the HTTP server on addr (e.g. ":8080") and blocks.
func (s *Server) Start(addr string) error {
	r := router.New()
	r.POST("/v1/completions", s.handleCompletion)
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", func(ctx *fasthttp.RequestCtx) { s.metrics.Handler()(ctx) })
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe(addr)
}
