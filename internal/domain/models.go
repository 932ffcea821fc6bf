// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"time"
)

// PricePoint is a single dated close price for one asset.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Close float64   `json:"close" msgpack:"close"`
}

// PriceSeries is the price history of one asset, in any date order.
type PriceSeries struct {
	AssetID string       `json:"asset_id" msgpack:"asset_id"`
	Points  []PricePoint `json:"points" msgpack:"points"`
}

// PriceTable holds one price column per asset and one row per observation date.
// Prices[t][i] is the price of AssetIDs[i] at Dates[t]. Column order is
// significant and duplicate asset IDs are kept as separate columns.
type PriceTable struct {
	AssetIDs []string    `json:"asset_ids" msgpack:"asset_ids"`
	Dates    []time.Time `json:"dates,omitempty" msgpack:"dates"`
	Prices   [][]float64 `json:"prices" msgpack:"prices"`
}

// Rows returns the number of observations.
func (pt PriceTable) Rows() int {
	return len(pt.Prices)
}

// Cols returns the number of assets.
func (pt PriceTable) Cols() int {
	return len(pt.AssetIDs)
}

// IsEmpty reports whether the table carries no usable data.
func (pt PriceTable) IsEmpty() bool {
	return pt.Rows() == 0 || pt.Cols() == 0
}

// Column copies the price column of asset i.
func (pt PriceTable) Column(i int) []float64 {
	col := make([]float64, len(pt.Prices))
	for t, row := range pt.Prices {
		col[t] = row[i]
	}
	return col
}

// AlignSeries builds a PriceTable from per-asset series, keeping only the dates
// present in every series (inner join), sorted ascending. The column order
// follows the order of series. Dates are compared at day granularity in UTC.
// If any series is empty the result is an empty table with the asset IDs set.
func AlignSeries(series []PriceSeries) PriceTable {
	ids := make([]string, len(series))
	for i, s := range series {
		ids[i] = s.AssetID
	}
	table := PriceTable{AssetIDs: ids}
	if len(series) == 0 {
		return table
	}

	byAsset := make([]map[time.Time]float64, len(series))
	for i, s := range series {
		if len(s.Points) == 0 {
			return table
		}
		m := make(map[time.Time]float64, len(s.Points))
		for _, p := range s.Points {
			m[truncateDay(p.Date)] = p.Close
		}
		byAsset[i] = m
	}

	var dates []time.Time
	for d := range byAsset[0] {
		inAll := true
		for _, m := range byAsset[1:] {
			if _, ok := m[d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	table.Dates = dates
	table.Prices = make([][]float64, len(dates))
	for t, d := range dates {
		row := make([]float64, len(series))
		for i, m := range byAsset {
			row[i] = m[d]
		}
		table.Prices[t] = row
	}
	return table
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
