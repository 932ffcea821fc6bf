package optimization

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/markcheno/go-talib"
)

// ComputeReturns converts a price table into simple period returns
// (p[t] - p[t-1]) / p[t-1]. The first observation has no predecessor and is
// dropped, so the result has one row fewer than the input.
func ComputeReturns(prices domain.PriceTable) (ReturnsTable, error) {
	if err := validatePrices(prices); err != nil {
		return ReturnsTable{}, err
	}

	rows, cols := prices.Rows(), prices.Cols()
	returns := make([][]float64, rows-1)
	for t := range returns {
		returns[t] = make([]float64, cols)
	}

	for i := 0; i < cols; i++ {
		// Rocp leaves index 0 at zero; the real series starts at 1.
		rocp := talib.Rocp(prices.Column(i), 1)
		for t := 1; t < rows; t++ {
			r := rocp[t]
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return ReturnsTable{}, fmt.Errorf("%w: non-finite return for asset %q at row %d", domain.ErrData, prices.AssetIDs[i], t)
			}
			returns[t-1][i] = r
		}
	}

	var dates []time.Time
	if len(prices.Dates) == rows {
		dates = append(dates, prices.Dates[1:]...)
	}

	return ReturnsTable{
		AssetIDs: append([]string(nil), prices.AssetIDs...),
		Dates:    dates,
		Returns:  returns,
	}, nil
}

func validatePrices(prices domain.PriceTable) error {
	if prices.Cols() == 0 {
		return fmt.Errorf("%w: price table has no assets", domain.ErrData)
	}
	if prices.Rows() < 2 {
		return fmt.Errorf("%w: need at least 2 price observations, got %d", domain.ErrData, prices.Rows())
	}
	if len(prices.Dates) != 0 && len(prices.Dates) != prices.Rows() {
		return fmt.Errorf("%w: %d dates for %d price rows", domain.ErrData, len(prices.Dates), prices.Rows())
	}
	for t, row := range prices.Prices {
		if len(row) != prices.Cols() {
			return fmt.Errorf("%w: row %d has %d prices, expected %d", domain.ErrData, t, len(row), prices.Cols())
		}
		for i, p := range row {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return fmt.Errorf("%w: invalid price %v for asset %q at row %d", domain.ErrData, p, prices.AssetIDs[i], t)
			}
		}
	}
	return nil
}
