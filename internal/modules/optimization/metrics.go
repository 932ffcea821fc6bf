package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Evaluate computes the expected return μᵀw, the risk sqrt(wᵀΣw) and the
// Sharpe ratio return/risk of an allocation. A portfolio with exactly zero
// risk has a Sharpe ratio of 0.
func Evaluate(weights, expectedReturns []float64, covariance mat.Symmetric) (PortfolioMetrics, error) {
	n := len(expectedReturns)
	if n == 0 {
		return PortfolioMetrics{}, fmt.Errorf("%w: no assets", domain.ErrValidation)
	}
	if len(weights) != n {
		return PortfolioMetrics{}, fmt.Errorf("%w: %d weights for %d assets", domain.ErrValidation, len(weights), n)
	}
	if covariance == nil || covariance.SymmetricDim() != n {
		return PortfolioMetrics{}, fmt.Errorf("%w: covariance matrix does not match %d assets", domain.ErrValidation, n)
	}

	ret := floats.Dot(expectedReturns, weights)
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	variance := mat.Inner(w, covariance, w)
	risk := math.Sqrt(math.Max(variance, 0))

	sharpe := 0.0
	if risk != 0 {
		sharpe = ret / risk
	}

	return PortfolioMetrics{
		ExpectedReturn: ret,
		Risk:           risk,
		SharpeRatio:    sharpe,
	}, nil
}
