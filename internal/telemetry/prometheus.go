// Package telemetry exposes a Prometheus metrics registry for the
// orchestrator. Grounded verbatim on internal/metrics/prometheus.go's
// private-registry + promhttp idiom, generalized from the teacher's
// HTTP-gateway-shaped metrics (routes, upstream attempts, failover events)
// to the orchestrator's domain: per-(provider,date) cost/usage, circuit
// breaker state, quota rejections, cache hit/miss, and adapter request
// outcomes. The private registry keeps these metrics from colliding with
// host-level metrics when this module is embedded in a larger process.
package telemetry

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds every metric this module exports.
type Registry struct {
	reg *prometheus.Registry

	// orchestrator_requests_total{provider,status}
	requestsTotal *prometheus.CounterVec

	// orchestrator_request_duration_seconds{provider,kind,cache}
	requestDuration *prometheus.HistogramVec

	// orchestrator_tokens_total{provider,direction}
	tokensTotal *prometheus.CounterVec

	// orchestrator_cost_usd_total{provider,date}
	costTotal *prometheus.CounterVec

	// orchestrator_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// orchestrator_quota_rejections_total{provider}
	quotaRejections *prometheus.CounterVec

	// orchestrator_ratelimit_rejections_total{provider}
	rateLimitRejections *prometheus.CounterVec

	// orchestrator_circuit_breaker_state{provider} — 0=closed,1=open,2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// orchestrator_circuit_breaker_transitions_total{provider,to_state}
	cbTransitions *prometheus.CounterVec

	// orchestrator_fallback_events_total{from,to,reason}
	fallbackEvents *prometheus.CounterVec

	// orchestrator_provider_health{provider}
	providerHealth *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_requests_total",
				Help: "Total adapter executions by provider and outcome status",
			},
			[]string{"provider", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_request_duration_seconds",
				Help:    "Adapter execution duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "kind", "cache"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tokens_total",
				Help: "Total tokens consumed by provider and direction",
			},
			[]string{"provider", "direction"},
		),

		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_cost_usd_total",
				Help: "Estimated cost in USD by provider and calendar date",
			},
			[]string{"provider", "date"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_cache_operations_total",
				Help: "Response cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		quotaRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_quota_rejections_total",
				Help: "Requests denied by quota check, by provider",
			},
			[]string{"provider"},
		),

		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_ratelimit_rejections_total",
				Help: "Requests denied by rate limiter, by provider",
			},
			[]string{"provider"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_circuit_breaker_state",
				Help: "Circuit breaker state per provider (0=closed,1=open,2=half-open)",
			},
			[]string{"provider"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions to a new state",
			},
			[]string{"provider", "to_state"},
		),

		fallbackEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_fallback_events_total",
				Help: "Cross-provider fallback events",
			},
			[]string{"from", "to", "reason"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_provider_health",
				Help: "Provider health status (1=ok, 0=degraded)",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.tokensTotal,
		r.costTotal,
		r.cacheOps,
		r.quotaRejections,
		r.rateLimitRejections,
		r.circuitBreakerState,
		r.cbTransitions,
		r.fallbackEvents,
		r.providerHealth,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

// RecordRequest records one adapter execution outcome.
func (r *Registry) RecordRequest(provider, status string, dur time.Duration, kind, cache string) {
	r.requestsTotal.WithLabelValues(provider, status).Inc()
	r.requestDuration.WithLabelValues(provider, kind, cache).Observe(dur.Seconds())
}

// AddTokens records token usage split by direction ("input"/"output").
func (r *Registry) AddTokens(provider string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// AddCost records estimated spend for provider, bucketed by calendar date
// (format "2006-01-02", caller-supplied so tests stay deterministic).
func (r *Registry) AddCost(provider, date string, usd float64) {
	r.costTotal.WithLabelValues(provider, date).Add(usd)
}

func (r *Registry) CacheHit()  { r.cacheOps.WithLabelValues("get", "hit").Inc() }
func (r *Registry) CacheMiss() { r.cacheOps.WithLabelValues("get", "miss").Inc() }
func (r *Registry) CacheSet()  { r.cacheOps.WithLabelValues("set", "ok").Inc() }

func (r *Registry) RecordQuotaRejection(provider string)     { r.quotaRejections.WithLabelValues(provider).Inc() }
func (r *Registry) RecordRateLimitRejection(provider string) { r.rateLimitRejections.WithLabelValues(provider).Inc() }

func (r *Registry) RecordFallback(from, to, reason string) {
	r.fallbackEvents.WithLabelValues(from, to, reason).Inc()
}

func (r *Registry) SetProviderHealth(provider string, ok bool) {
	if ok {
		r.providerHealth.WithLabelValues(provider).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(provider).Set(0)
}

// SetCircuitBreaker sets the breaker-state gauge and increments a
// transition counter when the observed state changes.
func (r *Registry) SetCircuitBreaker(provider string, state int64) {
	r.circuitBreakerState.WithLabelValues(provider).Set(float64(state))

	r.cbMu.Lock()
	prev, ok := r.lastCBState[provider]
	if !ok || prev != float64(state) {
		r.lastCBState[provider] = float64(state)
		r.cbTransitions.WithLabelValues(provider, strconv.FormatInt(state, 10)).Inc()
	}
	r.cbMu.Unlock()
}

// Handler returns the /metrics fasthttp handler.
func (r *Registry) Handler() fasthttp.RequestHandler { return r.metricsHandler }

// PromRegistry exposes the underlying registry for tests.
func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
