package observability

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func scenarioRequest(target float64) optimization.OptimizationRequest {
	return optimization.OptimizationRequest{
		ExpectedReturns: []float64{0.10, 0.20},
		Covariance:      mat.NewSymDense(2, []float64{0.04, 0, 0, 0.09}),
		TargetReturn:    target,
	}
}

func TestMetricsObserver(t *testing.T) {
	metrics := NewMetrics()
	observer := NewMetricsObserver(metrics, optimization.ActiveSetSolverName)
	optimizer := optimization.NewMVOptimizer(nil, observer)

	_, err := optimizer.Optimize(scenarioRequest(0.15))
	require.NoError(t, err)
	_, err = optimizer.Optimize(scenarioRequest(0.5))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OptimizationsTotal.WithLabelValues("active_set", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OptimizationsTotal.WithLabelValues("active_set", "infeasible")))
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	observer := NewLogObserver(zerolog.New(&buf).Level(zerolog.DebugLevel))

	optimizer := optimization.NewMVOptimizer(nil, observer)
	_, err := optimizer.Optimize(scenarioRequest(0.15))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Optimization solved")

	buf.Reset()
	observer.OptimizationFailed(scenarioRequest(1), fmt.Errorf("%w: not PSD", domain.ErrSolver), time.Millisecond)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"kind":"solver"`)
}

type countingObserver struct {
	succeeded, failed int
}

func (c *countingObserver) OptimizationSucceeded(optimization.OptimizationRequest, *optimization.OptimizationResult, time.Duration) {
	c.succeeded++
}

func (c *countingObserver) OptimizationFailed(optimization.OptimizationRequest, error, time.Duration) {
	c.failed++
}

func TestMulti(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	multi := Multi{a, b}

	multi.OptimizationSucceeded(scenarioRequest(0.1), &optimization.OptimizationResult{}, 0)
	multi.OptimizationFailed(scenarioRequest(0.1), errors.New("x"), 0)

	assert.Equal(t, 1, a.succeeded)
	assert.Equal(t, 1, b.failed)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", metrics.Handler())

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/runs/{id}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "http_server_requests_total"))
}
