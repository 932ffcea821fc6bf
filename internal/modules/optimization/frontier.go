package optimization

import (
	"fmt"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Frontier sweeps target returns evenly from min(μ) to max(μ) and solves the
// minimum-variance problem at each one. Risk is non-decreasing along the result.
func (mvo *MVOptimizer) Frontier(expectedReturns []float64, covariance mat.Symmetric, points int) ([]FrontierPoint, error) {
	if points < 2 {
		return nil, fmt.Errorf("%w: frontier needs at least 2 points, got %d", domain.ErrValidation, points)
	}
	if len(expectedReturns) == 0 {
		return nil, fmt.Errorf("%w: no assets provided", domain.ErrValidation)
	}

	lo, hi := floats.Min(expectedReturns), floats.Max(expectedReturns)
	targets := make([]float64, points)
	floats.Span(targets, lo, hi)
	// Span can overshoot the last element by rounding.
	targets[points-1] = hi

	frontier := make([]FrontierPoint, 0, points)
	for _, target := range targets {
		result, err := mvo.Optimize(OptimizationRequest{
			ExpectedReturns: expectedReturns,
			Covariance:      covariance,
			TargetReturn:    target,
		})
		if err != nil {
			return nil, fmt.Errorf("frontier point at target %.6f: %w", target, err)
		}
		frontier = append(frontier, FrontierPoint{
			TargetReturn:   target,
			ExpectedReturn: result.ExpectedReturn,
			Risk:           result.Risk,
			SharpeRatio:    result.SharpeRatio,
			Weights:        result.Weights,
		})
	}
	return frontier, nil
}
