package optimization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAllocationChart(t *testing.T) {
	png, err := RenderAllocationChart("Allocation", []string{"AAA", "BBB", "CCC"}, []float64{0.6, 0.4, 0})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "output should be a PNG image")
}

func TestRenderAllocationChart_Errors(t *testing.T) {
	_, err := RenderAllocationChart("x", []string{"AAA"}, []float64{0.5, 0.5})
	assert.Error(t, err)

	_, err = RenderAllocationChart("x", []string{"AAA"}, []float64{0})
	assert.Error(t, err)
}
