package historical

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// DateLayout is the date format used in price files and API requests.
const DateLayout = "2006-01-02"

// CSVSource reads prices from a wide CSV file with a header row
// "date,ID1,ID2,..." and one row per date. Empty cells mean no observation.
type CSVSource struct {
	path string
}

// NewCSVSource creates a file-backed price source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Fetch implements optimization.PriceSource. Rows are filtered to [start, end).
func (s *CSVSource) Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return domain.PriceTable{}, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	all, err := ParseWideCSV(f)
	if err != nil {
		return domain.PriceTable{}, fmt.Errorf("%s: %w", s.path, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.PriceTable{}, err
	}

	series := make([]domain.PriceSeries, len(assetIDs))
	for i, id := range assetIDs {
		found, ok := all[id]
		if !ok {
			return domain.PriceTable{}, fmt.Errorf("asset %q not found in %s", id, s.path)
		}
		series[i] = domain.PriceSeries{AssetID: id, Points: filterRange(found.Points, start, end)}
	}
	return domain.AlignSeries(series), nil
}

// ParseWideCSV parses "date,ID1,ID2,..." rows into one series per column.
func ParseWideCSV(r io.Reader) (map[string]domain.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return nil, fmt.Errorf("header must start with a date column followed by asset IDs")
	}

	ids := header[1:]
	series := make(map[string]domain.PriceSeries, len(ids))
	for _, id := range ids {
		series[id] = domain.PriceSeries{AssetID: id}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(DateLayout, strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, record[0])
		}
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			price, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid price %q for %s", line, cell, ids[i])
			}
			s := series[ids[i]]
			s.Points = append(s.Points, domain.PricePoint{Date: date, Close: price})
			series[ids[i]] = s
		}
	}
	return series, nil
}

// ParseSeriesCSV parses a two-column "date,close" file for one asset.
func ParseSeriesCSV(assetID string, r io.Reader) (domain.PriceSeries, error) {
	all, err := ParseWideCSV(r)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	if len(all) != 1 {
		return domain.PriceSeries{}, fmt.Errorf("expected a single price column, got %d", len(all))
	}
	for _, series := range all {
		series.AssetID = assetID
		return series, nil
	}
	return domain.PriceSeries{}, nil
}

func filterRange(points []domain.PricePoint, start, end time.Time) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		if !end.IsZero() && !p.Date.Before(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}
