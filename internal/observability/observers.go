package observability

import (
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// LogObserver logs every optimization outcome.
type LogObserver struct {
	log zerolog.Logger
}

// NewLogObserver creates a zerolog-backed observer.
func NewLogObserver(log zerolog.Logger) *LogObserver {
	return &LogObserver{log: log.With().Str("component", "optimizer").Logger()}
}

func (o *LogObserver) OptimizationSucceeded(req optimization.OptimizationRequest, result *optimization.OptimizationResult, elapsed time.Duration) {
	o.log.Debug().
		Int("assets", len(req.ExpectedReturns)).
		Float64("target_return", req.TargetReturn).
		Float64("expected_return", result.ExpectedReturn).
		Float64("risk", result.Risk).
		Str("solver", result.Solver).
		Int("iterations", result.Iterations).
		Dur("elapsed", elapsed).
		Msg("Optimization solved")
}

func (o *LogObserver) OptimizationFailed(req optimization.OptimizationRequest, err error, elapsed time.Duration) {
	event := o.log.Warn()
	if kind := domain.Kind(err); kind == domain.KindSolver || kind == domain.KindInternal {
		event = o.log.Error()
	}
	event.Err(err).
		Int("assets", len(req.ExpectedReturns)).
		Float64("target_return", req.TargetReturn).
		Str("kind", string(domain.Kind(err))).
		Dur("elapsed", elapsed).
		Msg("Optimization failed")
}

// MetricsObserver records optimization outcomes in Prometheus.
type MetricsObserver struct {
	metrics *Metrics
	solver  string
}

// NewMetricsObserver creates an observer labelled with the solver name.
func NewMetricsObserver(metrics *Metrics, solver string) *MetricsObserver {
	return &MetricsObserver{metrics: metrics, solver: solver}
}

func (o *MetricsObserver) OptimizationSucceeded(_ optimization.OptimizationRequest, result *optimization.OptimizationResult, elapsed time.Duration) {
	o.metrics.OptimizationsTotal.WithLabelValues(o.solver, "success").Inc()
	o.metrics.OptimizationDuration.WithLabelValues(o.solver).Observe(elapsed.Seconds())
	o.metrics.PortfolioRisk.Observe(result.Risk)
}

func (o *MetricsObserver) OptimizationFailed(_ optimization.OptimizationRequest, err error, elapsed time.Duration) {
	o.metrics.OptimizationsTotal.WithLabelValues(o.solver, string(domain.Kind(err))).Inc()
	o.metrics.OptimizationDuration.WithLabelValues(o.solver).Observe(elapsed.Seconds())
}

// Multi fans notifications out to several observers in order.
type Multi []optimization.Observer

func (m Multi) OptimizationSucceeded(req optimization.OptimizationRequest, result *optimization.OptimizationResult, elapsed time.Duration) {
	for _, o := range m {
		o.OptimizationSucceeded(req, result, elapsed)
	}
}

func (m Multi) OptimizationFailed(req optimization.OptimizationRequest, err error, elapsed time.Duration) {
	for _, o := range m {
		o.OptimizationFailed(req, err, elapsed)
	}
}
