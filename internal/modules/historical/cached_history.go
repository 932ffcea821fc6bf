package historical

import (
	"context"
	"time"

	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/rs/zerolog"
)

// CachedHistoryClient caches per-symbol bars so that overlapping asset lists
// reuse what earlier requests already downloaded.
type CachedHistoryClient struct {
	client PriceHistoryClient
	repo   *clientdata.Repository
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedHistoryClient wraps client with a per-symbol TTL cache.
func NewCachedHistoryClient(client PriceHistoryClient, repo *clientdata.Repository, ttl time.Duration, log zerolog.Logger) *CachedHistoryClient {
	if ttl <= 0 {
		ttl = clientdata.TTLPriceSeries
	}
	return &CachedHistoryClient{
		client: client,
		repo:   repo,
		ttl:    ttl,
		log:    log.With().Str("source", "series_cache").Logger(),
	}
}

// GetHistoricalPrices implements PriceHistoryClient.
func (c *CachedHistoryClient) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]yahoo.HistoricalPrice, error) {
	key := seriesKey(symbol, start, end)

	var bars []yahoo.HistoricalPrice
	found, err := c.repo.GetIfFresh(clientdata.TablePriceSeries, key, &bars)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read series cache")
	} else if found {
		return barsInUTC(bars), nil
	}

	bars, err = c.client.GetHistoricalPrices(ctx, symbol, start, end)
	if err != nil {
		var stale []yahoo.HistoricalPrice
		if ok, staleErr := c.repo.Get(clientdata.TablePriceSeries, key, &stale); staleErr == nil && ok {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Upstream fetch failed, serving stale series")
			return barsInUTC(stale), nil
		}
		return nil, err
	}

	if len(bars) > 0 {
		if err := c.repo.Store(clientdata.TablePriceSeries, key, bars, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to store series cache")
		}
	}
	return bars, nil
}

func seriesKey(symbol string, start, end time.Time) string {
	return symbol + "|" + start.UTC().Format(DateLayout) + "|" + end.UTC().Format(DateLayout)
}

func barsInUTC(bars []yahoo.HistoricalPrice) []yahoo.HistoricalPrice {
	for i := range bars {
		bars[i].Date = bars[i].Date.UTC()
	}
	return bars
}
