package historical

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Source is anything that can produce an aligned price table.
type Source interface {
	Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error)
}

// sharedFetchTimeout bounds an upstream fetch shared by coalesced callers.
const sharedFetchTimeout = 2 * time.Minute

// CachedSource serves price tables from the client data cache and falls back
// to the wrapped source on a miss. Concurrent misses for the same key share
// one upstream fetch. When the upstream fails, a stale entry is served instead.
type CachedSource struct {
	source       Source
	repo         *clientdata.Repository
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	log          zerolog.Logger
}

// NewCachedSource wraps source with a TTL cache.
func NewCachedSource(source Source, repo *clientdata.Repository, ttl time.Duration, log zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = clientdata.TTLPriceTable
	}
	return &CachedSource{
		source:       source,
		repo:         repo,
		ttl:          ttl,
		fetchTimeout: sharedFetchTimeout,
		log:          log.With().Str("source", "cache").Logger(),
	}
}

// Fetch implements optimization.PriceSource.
func (c *CachedSource) Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error) {
	key := cacheKey(assetIDs, start, end)

	var cached domain.PriceTable
	found, err := c.repo.GetIfFresh(clientdata.TablePriceTables, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read price cache")
	} else if found {
		c.log.Debug().Str("key", key).Msg("Price cache hit")
		return inUTC(cached), nil
	}

	// The shared fetch outlives any single caller: one caller going away
	// must not fail the others waiting on the same key.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		table, err := c.source.Fetch(fetchCtx, assetIDs, start, end)
		if err != nil {
			return domain.PriceTable{}, err
		}
		// Empty tables are not cached so that a later fetch can succeed.
		if !table.IsEmpty() {
			if err := c.repo.Store(clientdata.TablePriceTables, key, table, c.ttl); err != nil {
				c.log.Warn().Err(err).Msg("Failed to store price cache")
			}
		}
		return table, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.PriceTable{}, ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		var stale domain.PriceTable
		if ok, staleErr := c.repo.Get(clientdata.TablePriceTables, key, &stale); staleErr == nil && ok {
			c.log.Warn().Err(err).Str("key", key).Msg("Upstream fetch failed, serving stale prices")
			return inUTC(stale), nil
		}
		return domain.PriceTable{}, err
	}

	c.log.Debug().Str("key", key).Bool("shared", res.Shared).Msg("Price cache miss")
	return res.Val.(domain.PriceTable), nil
}

// cacheKey hashes the ordered asset list and date range. Order matters
// because table columns follow the request order.
func cacheKey(assetIDs []string, start, end time.Time) string {
	combined := strings.Join(assetIDs, ",") + "|" + start.UTC().Format(DateLayout) + "|" + end.UTC().Format(DateLayout)
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:16])
}

// inUTC restores the UTC location that msgpack drops when decoding times.
func inUTC(table domain.PriceTable) domain.PriceTable {
	for i, d := range table.Dates {
		table.Dates[i] = d.UTC()
	}
	return table
}
