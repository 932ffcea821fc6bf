package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActiveSetSolverName identifies the active-set solver in configuration.
const ActiveSetSolverName = "active_set"

const (
	stepTolerance        = 1e-10
	multiplierTolerance  = 1e-10
	feasibilityTolerance = 1e-9
	independenceTol      = 1e-9
)

// ActiveSetSolver is a primal active-set method for convex QPs.
// Each iteration solves the equality-constrained subproblem on the working set
// through its KKT system
//
//	[ G  Aᵀ ] [ -p ]   [ g ]
//	[ A  0  ] [  λ ] = [ 0 ]
//
// with G = 2Q and g = Gx, then either steps along p up to the first blocking
// constraint or drops the inequality with the most negative multiplier.
// The result is exact up to floating point once the multipliers are non-negative.
type ActiveSetSolver struct {
	// MaxIterations caps the number of working-set changes. Zero means 50·(n+m).
	MaxIterations int
}

// NewActiveSetSolver creates an active-set solver with default limits.
func NewActiveSetSolver() *ActiveSetSolver {
	return &ActiveSetSolver{}
}

// Name implements Solver.
func (s *ActiveSetSolver) Name() string {
	return ActiveSetSolverName
}

// Solve implements Solver. qp.Start must be feasible.
func (s *ActiveSetSolver) Solve(qp QuadraticProgram) (Solution, error) {
	if err := qp.validate(); err != nil {
		return Solution{}, err
	}
	n := qp.Dim()
	x := append([]float64(nil), qp.Start...)

	if !allFinite(x) || qp.MaxViolation(x) > feasibilityTolerance*math.Max(1, floats.Norm(x, math.Inf(1))) {
		return Solution{Status: StatusInfeasible}, nil
	}

	constraints := append(append([]LinearConstraint(nil), qp.Equalities...), qp.Inequalities...)
	numEq := len(qp.Equalities)
	isEquality := func(k int) bool { return k < numEq }

	// Initial working set: equalities plus active inequalities, skipping
	// normals that are linearly dependent on those already chosen.
	var working workingSet
	var basis [][]float64
	for k, c := range constraints {
		if !isEquality(k) && math.Abs(c.eval(x)-c.Bound) > feasibilityTolerance {
			continue
		}
		if v, ok := orthogonalize(basis, c.Coefficients); ok {
			basis = append(basis, v)
			working.add(k)
		}
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50 * (n + len(constraints))
	}

	g := mat.NewSymDense(n, nil)
	g.ScaleSym(2, qp.Q)
	ridge := 1e-10 * math.Max(1, maxDiagonal(g))

	for iter := 1; iter <= maxIter; iter++ {
		p, lambda, ok := solveKKT(g, x, constraints, working.members, ridge)
		if !ok {
			return Solution{Status: StatusNumericalError, Iterations: iter}, nil
		}

		if floats.Norm(p, math.Inf(1)) <= stepTolerance {
			drop, mostNegative := -1, -multiplierTolerance
			for j, k := range working.members {
				if isEquality(k) {
					continue
				}
				if lambda[j] < mostNegative {
					drop, mostNegative = j, lambda[j]
				}
			}
			if drop < 0 {
				return Solution{
					Status:     StatusOptimal,
					X:          x,
					Objective:  qp.Objective(x),
					Iterations: iter,
				}, nil
			}
			working.remove(drop)
			continue
		}

		alpha, blocking := 1.0, -1
		pNorm := floats.Norm(p, 2)
		for k := numEq; k < len(constraints); k++ {
			if working.contains(k) {
				continue
			}
			c := constraints[k]
			ap := floats.Dot(c.Coefficients, p)
			if ap >= -1e-12*floats.Norm(c.Coefficients, 2)*pNorm {
				continue
			}
			ratio := (c.Bound - c.eval(x)) / ap
			if ratio < 0 {
				ratio = 0
			}
			if ratio < alpha {
				alpha, blocking = ratio, k
			}
		}

		floats.AddScaled(x, alpha, p)
		if blocking >= 0 {
			working.add(blocking)
		}
	}

	return Solution{Status: StatusIterationLimit, X: x, Iterations: maxIter}, nil
}

// solveKKT returns the step p and the multipliers of the working set,
// retrying with a small ridge on G when the system is singular.
func solveKKT(g *mat.SymDense, x []float64, constraints []LinearConstraint, members []int, ridge float64) ([]float64, []float64, bool) {
	n, m := len(x), len(members)

	var gx mat.VecDense
	gx.MulVec(g, mat.NewVecDense(n, x))
	rhs := mat.NewVecDense(n+m, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, gx.AtVec(i))
	}

	for _, eps := range []float64{0, ridge} {
		kkt := mat.NewDense(n+m, n+m, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				kkt.Set(i, j, g.At(i, j))
			}
			kkt.Set(i, i, kkt.At(i, i)+eps)
		}
		for j, k := range members {
			for i, a := range constraints[k].Coefficients {
				kkt.Set(i, n+j, a)
				kkt.Set(n+j, i, a)
			}
		}

		var sol mat.VecDense
		err := sol.SolveVec(kkt, rhs)
		if err != nil {
			if cond, isCond := err.(mat.Condition); !isCond || math.IsInf(float64(cond), 1) {
				continue
			}
		}
		raw := sol.RawVector().Data
		if !allFinite(raw) {
			continue
		}

		p := make([]float64, n)
		for i := range p {
			p[i] = -raw[i]
		}
		return p, append([]float64(nil), raw[n:]...), true
	}
	return nil, nil, false
}

func maxDiagonal(s mat.Symmetric) float64 {
	var d float64
	for i := 0; i < s.SymmetricDim(); i++ {
		d = math.Max(d, math.Abs(s.At(i, i)))
	}
	return d
}

// workingSet holds the indices of the constraints currently treated as equalities.
type workingSet struct {
	members []int
}

func (w *workingSet) contains(k int) bool {
	for _, m := range w.members {
		if m == k {
			return true
		}
	}
	return false
}

func (w *workingSet) add(k int) {
	w.members = append(w.members, k)
}

func (w *workingSet) remove(pos int) {
	w.members = append(w.members[:pos], w.members[pos+1:]...)
}

// orthogonalize projects a onto the complement of the orthonormal basis and
// returns the normalized residual, or false when a is in the span of basis.
func orthogonalize(basis [][]float64, a []float64) ([]float64, bool) {
	r := append([]float64(nil), a...)
	for _, b := range basis {
		floats.AddScaled(r, -floats.Dot(r, b), b)
	}
	norm := floats.Norm(r, 2)
	if norm <= independenceTol*floats.Norm(a, 2) || norm == 0 {
		return nil, false
	}
	floats.Scale(1/norm, r)
	return r, true
}
