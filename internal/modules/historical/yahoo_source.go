// Package historical provides historical price sources for portfolio optimization.
package historical

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PriceHistoryClient fetches daily bars for one symbol.
type PriceHistoryClient interface {
	GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]yahoo.HistoricalPrice, error)
}

// YahooSource fetches adjusted closes for every asset concurrently and aligns
// them on the dates all assets share.
type YahooSource struct {
	client      PriceHistoryClient
	concurrency int
	log         zerolog.Logger
}

// NewYahooSource creates a Yahoo-backed price source.
func NewYahooSource(client PriceHistoryClient, concurrency int, log zerolog.Logger) *YahooSource {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &YahooSource{
		client:      client,
		concurrency: concurrency,
		log:         log.With().Str("source", "yahoo").Logger(),
	}
}

// Fetch implements optimization.PriceSource. Any asset without data yields an
// empty table.
func (s *YahooSource) Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error) {
	series := make([]domain.PriceSeries, len(assetIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range assetIDs {
		i, id := i, id
		g.Go(func() error {
			bars, err := s.client.GetHistoricalPrices(gctx, id, start, end)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", id, err)
			}
			points := make([]domain.PricePoint, 0, len(bars))
			for _, bar := range bars {
				points = append(points, domain.PricePoint{Date: bar.Date, Close: bar.AdjClose})
			}
			series[i] = domain.PriceSeries{AssetID: id, Points: points}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PriceTable{}, err
	}

	table := domain.AlignSeries(series)
	s.log.Debug().
		Strs("assets", assetIDs).
		Int("rows", table.Rows()).
		Msg("Aligned price history")
	return table, nil
}
