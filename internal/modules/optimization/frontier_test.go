package optimization

import (
	"errors"
	"testing"

	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFrontier_RiskNonDecreasing(t *testing.T) {
	mu := []float64{0.06, 0.10, 0.14}
	sigma := mat.NewSymDense(3, []float64{
		0.020, 0.004, 0.002,
		0.004, 0.050, 0.010,
		0.002, 0.010, 0.090,
	})
	optimizer := NewMVOptimizer(nil, nil)

	frontier, err := optimizer.Frontier(mu, sigma, 9)
	require.NoError(t, err)
	require.Len(t, frontier, 9)

	assert.InDelta(t, 0.06, frontier[0].TargetReturn, 1e-12)
	assert.Equal(t, 0.14, frontier[8].TargetReturn)
	for i := 1; i < len(frontier); i++ {
		assert.GreaterOrEqual(t, frontier[i].Risk, frontier[i-1].Risk-1e-12)
		assert.GreaterOrEqual(t, frontier[i].ExpectedReturn, frontier[i].TargetReturn-1e-9)
	}
	assert.InDelta(t, 1.0, frontier[8].Weights[2], 1e-9)
}

func TestFrontier_Validation(t *testing.T) {
	optimizer := NewMVOptimizer(nil, nil)

	_, err := optimizer.Frontier([]float64{0.1}, mat.NewSymDense(1, []float64{0.01}), 1)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = optimizer.Frontier(nil, mat.NewSymDense(1, []float64{0.01}), 5)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
