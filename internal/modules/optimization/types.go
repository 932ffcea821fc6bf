package optimization

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// ReturnsTable holds simple per-period returns, one row per period after the first
// price observation. Returns[t][i] belongs to AssetIDs[i].
type ReturnsTable struct {
	AssetIDs []string
	Dates    []time.Time
	Returns  [][]float64
}

// Rows returns the number of return periods.
func (rt ReturnsTable) Rows() int {
	return len(rt.Returns)
}

// Cols returns the number of assets.
func (rt ReturnsTable) Cols() int {
	return len(rt.AssetIDs)
}

// Statistics is the annualized expected return vector and covariance matrix of a returns table.
type Statistics struct {
	AssetIDs        []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
}

// OptimizationRequest is the input of a single mean-variance solve.
// ExpectedReturns and Covariance must agree on the number of assets.
type OptimizationRequest struct {
	ExpectedReturns []float64
	Covariance      mat.Symmetric
	TargetReturn    float64
}

// OptimizationResult holds the optimal weights in request order and the
// resulting portfolio metrics.
type OptimizationResult struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Risk           float64   `json:"risk"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Solver         string    `json:"solver"`
	Iterations     int       `json:"iterations"`
}

// PortfolioMetrics are the annualized return, volatility and Sharpe ratio of an allocation.
type PortfolioMetrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Risk           float64 `json:"risk"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// FrontierPoint is one optimal portfolio on the efficient frontier.
type FrontierPoint struct {
	TargetReturn   float64   `json:"target_return"`
	ExpectedReturn float64   `json:"expected_return"`
	Risk           float64   `json:"risk"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Weights        []float64 `json:"weights"`
}
