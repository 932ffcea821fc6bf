package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// SolverStatus is the outcome of a QP solve.
type SolverStatus int

const (
	StatusOptimal SolverStatus = iota
	StatusInfeasible
	StatusNumericalError
	StatusIterationLimit
)

func (s SolverStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusNumericalError:
		return "numerical_error"
	case StatusIterationLimit:
		return "iteration_limit"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// LinearConstraint is a single row aᵀx (= or ≥) b.
type LinearConstraint struct {
	Coefficients []float64
	Bound        float64
}

func (c LinearConstraint) eval(x []float64) float64 {
	var s float64
	for i, a := range c.Coefficients {
		s += a * x[i]
	}
	return s
}

// QuadraticProgram describes
//
//	minimize   xᵀQx
//	subject to aᵀx = b  for every equality
//	           aᵀx ≥ b  for every inequality
//
// Start is a feasible point. Solvers that do not need one use it as an initial guess.
type QuadraticProgram struct {
	Q            mat.Symmetric
	Equalities   []LinearConstraint
	Inequalities []LinearConstraint
	Start        []float64
}

// Dim returns the number of decision variables.
func (qp QuadraticProgram) Dim() int {
	if qp.Q == nil {
		return 0
	}
	return qp.Q.SymmetricDim()
}

// Objective evaluates xᵀQx.
func (qp QuadraticProgram) Objective(x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return mat.Inner(v, qp.Q, v)
}

// MaxViolation returns the largest constraint violation at x.
func (qp QuadraticProgram) MaxViolation(x []float64) float64 {
	var worst float64
	for _, c := range qp.Equalities {
		worst = math.Max(worst, math.Abs(c.eval(x)-c.Bound))
	}
	for _, c := range qp.Inequalities {
		worst = math.Max(worst, c.Bound-c.eval(x))
	}
	return worst
}

func (qp QuadraticProgram) validate() error {
	n := qp.Dim()
	if n == 0 {
		return fmt.Errorf("%w: quadratic program has no variables", domain.ErrSolver)
	}
	if len(qp.Start) != n {
		return fmt.Errorf("%w: start point has %d entries, expected %d", domain.ErrSolver, len(qp.Start), n)
	}
	for _, group := range [][]LinearConstraint{qp.Equalities, qp.Inequalities} {
		for k, c := range group {
			if len(c.Coefficients) != n {
				return fmt.Errorf("%w: constraint %d has %d coefficients, expected %d", domain.ErrSolver, k, len(c.Coefficients), n)
			}
		}
	}
	return nil
}

// Solution is the solver output. X is only meaningful when Status is StatusOptimal.
type Solution struct {
	Status     SolverStatus
	X          []float64
	Objective  float64
	Iterations int
}

// Solver solves convex quadratic programs.
type Solver interface {
	Name() string
	Solve(qp QuadraticProgram) (Solution, error)
}

// NewSolver returns the solver registered under name.
func NewSolver(name string) (Solver, error) {
	switch name {
	case "", ActiveSetSolverName:
		return NewActiveSetSolver(), nil
	case PenaltySolverName:
		return NewPenaltySolver(), nil
	default:
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
