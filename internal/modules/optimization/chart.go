package optimization

import (
	"fmt"

	"github.com/vicanso/go-charts/v2"
)

// minChartWeight hides slices too small to label.
const minChartWeight = 0.0005

// RenderAllocationChart draws the allocation as a PNG pie chart.
func RenderAllocationChart(title string, assetIDs []string, weights []float64) ([]byte, error) {
	if len(assetIDs) != len(weights) {
		return nil, fmt.Errorf("%d asset ids for %d weights", len(assetIDs), len(weights))
	}

	var (
		values []float64
		labels []string
	)
	for i, w := range weights {
		if w < minChartWeight {
			continue
		}
		values = append(values, w)
		labels = append(labels, fmt.Sprintf("%s (%.1f%%)", assetIDs[i], w*100))
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("allocation has no positive weights")
	}

	p, err := charts.PieRender(
		values,
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render allocation chart: %w", err)
	}
	return p.Bytes()
}
