// Package observability provides Prometheus metrics and optimizer observers.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry and the service's standard collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	OptimizationsTotal   *prometheus.CounterVec
	OptimizationDuration *prometheus.HistogramVec
	PortfolioRisk        prometheus.Histogram
}

// NewMetrics creates the registry with Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.newCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.newHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.OptimizationsTotal = m.newCounterVec(prometheus.CounterOpts{
		Name: "allocator_optimizations_total",
		Help: "Optimizations by solver and outcome kind",
	}, []string{"solver", "outcome"})

	m.OptimizationDuration = m.newHistogramVec(prometheus.HistogramOpts{
		Name:    "allocator_optimization_duration_seconds",
		Help:    "Time spent solving one optimization",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"solver"})

	m.PortfolioRisk = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocator_portfolio_risk",
		Help:    "Annualized volatility of optimized portfolios",
		Buckets: prometheus.LinearBuckets(0.05, 0.05, 10),
	})
	reg.MustRegister(m.PortfolioRisk)

	return m
}

func (m *Metrics) newCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labels)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) newHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labels)
	m.registry.MustRegister(hv)
	return hv
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route pattern, so that
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
