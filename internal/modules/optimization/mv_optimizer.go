package optimization

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// psdTolerance is the relative eigenvalue slack allowed for rounding in
// covariance matrices that are positive semidefinite in exact arithmetic.
const psdTolerance = 1e-10

// returnFloorTolerance is the shortfall below the target return left as is.
const returnFloorTolerance = 1e-12

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	solver   Solver
	observer Observer
}

// NewMVOptimizer creates a new mean-variance optimizer.
// A nil solver selects the active-set solver; a nil observer discards notifications.
func NewMVOptimizer(solver Solver, observer Observer) *MVOptimizer {
	if solver == nil {
		solver = NewActiveSetSolver()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &MVOptimizer{
		solver:   solver,
		observer: observer,
	}
}

// SolverName returns the name of the underlying QP solver.
func (mvo *MVOptimizer) SolverName() string {
	return mvo.solver.Name()
}

// Optimize solves the minimum-variance problem with a return floor.
//
// Mathematical formulation:
//   - minimize w'Σw
//   - Σw = 1 (weights sum to 1)
//   - μ'w ≥ target_return
//   - w_i ≥ 0 (long only)
//
// The problem is infeasible exactly when target_return exceeds max(μ).
func (mvo *MVOptimizer) Optimize(req OptimizationRequest) (*OptimizationResult, error) {
	started := time.Now()
	result, err := mvo.optimize(req)
	if err != nil {
		mvo.observer.OptimizationFailed(req, err, time.Since(started))
		return nil, err
	}
	mvo.observer.OptimizationSucceeded(req, result, time.Since(started))
	return result, nil
}

func (mvo *MVOptimizer) optimize(req OptimizationRequest) (*OptimizationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := checkPositiveSemidefinite(req.Covariance); err != nil {
		return nil, err
	}

	mu := req.ExpectedReturns
	n := len(mu)

	// The best achievable return is the largest μ_i (all weight on one asset).
	best := 0
	for i := 1; i < n; i++ {
		if mu[i] > mu[best] {
			best = i
		}
	}
	if req.TargetReturn > mu[best] {
		return nil, fmt.Errorf("%w: target return %.6f exceeds the maximum expected return %.6f", domain.ErrInfeasible, req.TargetReturn, mu[best])
	}

	qp := buildQuadraticProgram(req, best)
	sol, err := mvo.solver.Solve(qp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s solver: %v", domain.ErrSolver, mvo.solver.Name(), err)
	}

	switch sol.Status {
	case StatusOptimal:
	case StatusInfeasible:
		return nil, fmt.Errorf("%w: %s solver reported an infeasible problem", domain.ErrInfeasible, mvo.solver.Name())
	default:
		return nil, fmt.Errorf("%w: %s solver stopped with status %s after %d iterations", domain.ErrSolver, mvo.solver.Name(), sol.Status, sol.Iterations)
	}

	weights, err := normalizeWeights(sol.X)
	if err != nil {
		return nil, err
	}
	weights, err = restoreReturnFloor(weights, mu, req.TargetReturn, best)
	if err != nil {
		return nil, fmt.Errorf("%w: %s solver: %v", domain.ErrSolver, mvo.solver.Name(), err)
	}

	metrics, err := Evaluate(weights, mu, req.Covariance)
	if err != nil {
		return nil, err
	}

	return &OptimizationResult{
		Weights:        weights,
		ExpectedReturn: metrics.ExpectedReturn,
		Risk:           metrics.Risk,
		SharpeRatio:    metrics.SharpeRatio,
		Solver:         mvo.solver.Name(),
		Iterations:     sol.Iterations,
	}, nil
}

// buildQuadraticProgram starts from the vertex that puts all weight on the
// highest-return asset, which is feasible whenever the target is attainable.
func buildQuadraticProgram(req OptimizationRequest, best int) QuadraticProgram {
	n := len(req.ExpectedReturns)

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	inequalities := make([]LinearConstraint, 0, n+1)
	inequalities = append(inequalities, LinearConstraint{
		Coefficients: append([]float64(nil), req.ExpectedReturns...),
		Bound:        req.TargetReturn,
	})
	for i := 0; i < n; i++ {
		e := make([]float64, n)
		e[i] = 1
		inequalities = append(inequalities, LinearConstraint{Coefficients: e})
	}

	start := make([]float64, n)
	start[best] = 1

	return QuadraticProgram{
		Q:            req.Covariance,
		Equalities:   []LinearConstraint{{Coefficients: ones, Bound: 1}},
		Inequalities: inequalities,
		Start:        start,
	}
}

// normalizeWeights clamps solver noise below zero and rescales to a sum of 1.
func normalizeWeights(x []float64) ([]float64, error) {
	weights := make([]float64, len(x))
	sum := 0.0
	for i, w := range x {
		weights[i] = math.Max(0.0, w)
		sum += weights[i]
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: solver returned weights that cannot be normalized", domain.ErrSolver)
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// restoreReturnFloor moves weight toward the highest-return asset until μᵀw
// reaches the target. Approximate solvers can stop slightly short of it.
func restoreReturnFloor(weights, mu []float64, target float64, best int) ([]float64, error) {
	ret := floats.Dot(weights, mu)
	if ret >= target-returnFloorTolerance {
		return weights, nil
	}
	gap := mu[best] - ret
	if gap <= 0 {
		return nil, fmt.Errorf("return %.6g below target %.6g cannot be repaired", ret, target)
	}
	t := math.Min(1, (target-ret)/gap)

	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = (1 - t) * w
	}
	out[best] += t
	return out, nil
}

func validateRequest(req OptimizationRequest) error {
	n := len(req.ExpectedReturns)
	if n == 0 {
		return fmt.Errorf("%w: no assets provided", domain.ErrValidation)
	}
	if req.Covariance == nil {
		return fmt.Errorf("%w: covariance matrix is required", domain.ErrValidation)
	}
	if dim := req.Covariance.SymmetricDim(); dim != n {
		return fmt.Errorf("%w: covariance matrix size %d doesn't match %d expected returns", domain.ErrValidation, dim, n)
	}
	if !allFinite(req.ExpectedReturns) {
		return fmt.Errorf("%w: expected returns must be finite", domain.ErrValidation)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := req.Covariance.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: covariance entry (%d,%d) is not finite", domain.ErrValidation, i, j)
			}
		}
	}
	if math.IsNaN(req.TargetReturn) || math.IsInf(req.TargetReturn, 0) {
		return fmt.Errorf("%w: target return must be finite", domain.ErrValidation)
	}
	return nil
}

func checkPositiveSemidefinite(sigma mat.Symmetric) error {
	var eig mat.EigenSym
	if ok := eig.Factorize(sigma, false); !ok {
		return fmt.Errorf("%w: eigen decomposition of covariance matrix failed", domain.ErrSolver)
	}
	values := eig.Values(nil)
	maxAbs := 0.0
	minValue := math.Inf(1)
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
		minValue = math.Min(minValue, v)
	}
	if minValue < -psdTolerance*math.Max(1, maxAbs) {
		return fmt.Errorf("%w: covariance matrix is not positive semidefinite (min eigenvalue %g)", domain.ErrSolver, minValue)
	}
	return nil
}
