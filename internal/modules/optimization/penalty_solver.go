package optimization

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// PenaltySolverName identifies the penalty solver in configuration.
const PenaltySolverName = "penalty"

// PenaltySolver minimizes xᵀQx plus quadratic penalties on constraint
// violations with BFGS, tightening the penalty weight in stages and warm
// starting each stage from the previous solution. Results are approximate:
// constraints hold to within ViolationTolerance.
type PenaltySolver struct {
	Weights            []float64
	ViolationTolerance float64
	MaxIterations      int // per stage
}

// NewPenaltySolver creates a penalty solver with default stages.
func NewPenaltySolver() *PenaltySolver {
	return &PenaltySolver{
		Weights:            []float64{1e2, 1e4, 1e6},
		ViolationTolerance: 1e-4,
		MaxIterations:      2000,
	}
}

// Name implements Solver.
func (s *PenaltySolver) Name() string {
	return PenaltySolverName
}

// Solve implements Solver.
func (s *PenaltySolver) Solve(qp QuadraticProgram) (Solution, error) {
	if err := qp.validate(); err != nil {
		return Solution{}, err
	}
	// Accept various successful convergence statuses
	successStatuses := map[optimize.Status]bool{
		optimize.Success:             true,
		optimize.GradientThreshold:   true,
		optimize.FunctionConvergence: true,
	}

	x := append([]float64(nil), qp.Start...)
	iterations := 0
	converged := false
	for _, rho := range s.Weights {
		problem := penaltyProblem(qp, rho)
		result, err := optimize.Minimize(problem, x, &optimize.Settings{
			GradientThreshold: 1e-10,
			MajorIterations:   s.MaxIterations,
		}, &optimize.BFGS{})
		if result == nil {
			return Solution{Status: StatusNumericalError, Iterations: iterations}, nil
		}
		iterations += result.MajorIterations
		// Line search failures still leave a usable location.
		if allFinite(result.X) {
			copy(x, result.X)
		}
		converged = err == nil && successStatuses[result.Status]
	}

	if !allFinite(x) {
		return Solution{Status: StatusNumericalError, Iterations: iterations}, nil
	}
	if qp.MaxViolation(x) > s.ViolationTolerance {
		if !converged {
			return Solution{Status: StatusIterationLimit, X: x, Iterations: iterations}, nil
		}
		return Solution{Status: StatusNumericalError, X: x, Iterations: iterations}, nil
	}

	return Solution{
		Status:     StatusOptimal,
		X:          x,
		Objective:  qp.Objective(x),
		Iterations: iterations,
	}, nil
}

func penaltyProblem(qp QuadraticProgram, rho float64) optimize.Problem {
	n := qp.Dim()
	return optimize.Problem{
		Func: func(x []float64) float64 {
			obj := qp.Objective(x)
			for _, c := range qp.Equalities {
				d := c.eval(x) - c.Bound
				obj += rho * d * d
			}
			for _, c := range qp.Inequalities {
				if d := c.Bound - c.eval(x); d > 0 {
					obj += rho * d * d
				}
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			// Gradient of xᵀQx is 2Qx
			g := mat.NewVecDense(n, grad)
			g.MulVec(qp.Q, mat.NewVecDense(n, x))
			floats.Scale(2, grad)

			for _, c := range qp.Equalities {
				d := c.eval(x) - c.Bound
				floats.AddScaled(grad, 2*rho*d, c.Coefficients)
			}
			for _, c := range qp.Inequalities {
				if d := c.Bound - c.eval(x); d > 0 {
					floats.AddScaled(grad, -2*rho*d, c.Coefficients)
				}
			}
		},
	}
}
