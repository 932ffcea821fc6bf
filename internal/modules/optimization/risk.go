package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// ExpectedReturns returns the annualized arithmetic mean return of every asset.
func ExpectedReturns(returns ReturnsTable) ([]float64, error) {
	if err := validateReturns(returns, 1); err != nil {
		return nil, err
	}

	mu := make([]float64, returns.Cols())
	for i := range mu {
		mu[i] = stat.Mean(returnsColumn(returns, i), nil) * TradingDaysPerYear
	}
	return mu, nil
}

// Covariance returns the annualized sample covariance matrix (n-1 denominator).
// The result is stored symmetrically, so entry (i,j) and (j,i) are the same value.
func Covariance(returns ReturnsTable) (*mat.SymDense, error) {
	// The unbiased estimator is undefined for a single observation.
	if err := validateReturns(returns, 2); err != nil {
		return nil, err
	}

	rows, cols := returns.Rows(), returns.Cols()
	x := mat.NewDense(rows, cols, nil)
	for t, row := range returns.Returns {
		x.SetRow(t, row)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	cov.ScaleSym(TradingDaysPerYear, &cov)
	return &cov, nil
}

// ComputeStatistics derives both expected returns and covariance from a returns table.
func ComputeStatistics(returns ReturnsTable) (*Statistics, error) {
	mu, err := ExpectedReturns(returns)
	if err != nil {
		return nil, err
	}
	cov, err := Covariance(returns)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		AssetIDs:        append([]string(nil), returns.AssetIDs...),
		ExpectedReturns: mu,
		Covariance:      cov,
	}, nil
}

// CovarianceFromRows builds a covariance matrix from a square, symmetric
// row-major matrix such as one decoded from JSON. Entries must be finite and
// mirrored entries may differ only by rounding; the upper triangle is kept.
func CovarianceFromRows(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: covariance matrix is empty", domain.ErrValidation)
	}
	cov := mat.NewSymDense(n, nil)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: covariance row %d has %d values, expected %d", domain.ErrValidation, i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: covariance entry (%d,%d) is not finite", domain.ErrValidation, i, j)
			}
			if j < i {
				continue
			}
			cov.SetSym(i, j, v)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			upper, lower := rows[j][i], rows[i][j]
			if math.Abs(upper-lower) > 1e-9*math.Max(1, math.Max(math.Abs(upper), math.Abs(lower))) {
				return nil, fmt.Errorf("%w: covariance matrix is not symmetric at (%d,%d)", domain.ErrValidation, i, j)
			}
		}
	}
	return cov, nil
}

func validateReturns(returns ReturnsTable, minRows int) error {
	if returns.Cols() == 0 {
		return fmt.Errorf("%w: returns table has no assets", domain.ErrData)
	}
	if returns.Rows() < minRows {
		return fmt.Errorf("%w: need at least %d return observations, got %d", domain.ErrData, minRows, returns.Rows())
	}
	for t, row := range returns.Returns {
		if len(row) != returns.Cols() {
			return fmt.Errorf("%w: returns row %d has %d values, expected %d", domain.ErrData, t, len(row), returns.Cols())
		}
	}
	return nil
}

func returnsColumn(returns ReturnsTable, i int) []float64 {
	col := make([]float64, returns.Rows())
	for t, row := range returns.Returns {
		col[t] = row[i]
	}
	return col
}
