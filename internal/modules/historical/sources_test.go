package historical

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/clientdata"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

type fakeYahoo struct {
	mu    sync.Mutex
	bars  map[string][]yahoo.HistoricalPrice
	err   error
	calls []string
}

func (f *fakeYahoo) GetHistoricalPrices(_ context.Context, symbol string, _, _ time.Time) ([]yahoo.HistoricalPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[symbol], nil
}

func TestYahooSource_AlignsAdjustedCloses(t *testing.T) {
	client := &fakeYahoo{bars: map[string][]yahoo.HistoricalPrice{
		"AAA": {
			{Date: day(2), Close: 11, AdjClose: 10},
			{Date: day(3), Close: 12, AdjClose: 11},
			{Date: day(4), Close: 13, AdjClose: 12},
		},
		"BBB": {
			{Date: day(3), Close: 20, AdjClose: 20},
			{Date: day(4), Close: 21, AdjClose: 21},
		},
	}}
	source := NewYahooSource(client, 2, zerolog.Nop())

	table, err := source.Fetch(context.Background(), []string{"BBB", "AAA"}, day(1), day(5))
	require.NoError(t, err)

	assert.Equal(t, []string{"BBB", "AAA"}, table.AssetIDs)
	assert.Equal(t, []time.Time{day(3), day(4)}, table.Dates)
	assert.Equal(t, [][]float64{{20, 11}, {21, 12}}, table.Prices)
}

func TestYahooSource_MissingAssetGivesEmptyTable(t *testing.T) {
	client := &fakeYahoo{bars: map[string][]yahoo.HistoricalPrice{
		"AAA": {{Date: day(2), AdjClose: 10}},
	}}
	source := NewYahooSource(client, 0, zerolog.Nop())

	table, err := source.Fetch(context.Background(), []string{"AAA", "ZZZ"}, day(1), day(5))
	require.NoError(t, err)
	assert.True(t, table.IsEmpty())
}

func TestYahooSource_PropagatesErrors(t *testing.T) {
	client := &fakeYahoo{err: errors.New("timeout")}
	source := NewYahooSource(client, 1, zerolog.Nop())

	_, err := source.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch AAA")
}

const wideCSV = `date,AAA,BBB,CCC
2024-01-02,10,20,30
2024-01-03,11,,31
2024-01-04,12,22,32
2024-01-05,13,23,33
`

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSource_SelectsColumnsAndRange(t *testing.T) {
	source := NewCSVSource(writeTempCSV(t, wideCSV))

	table, err := source.Fetch(context.Background(), []string{"CCC", "BBB"}, day(2), day(5))
	require.NoError(t, err)

	assert.Equal(t, []string{"CCC", "BBB"}, table.AssetIDs)
	// Jan 3 has no BBB observation; Jan 5 is outside [start, end).
	assert.Equal(t, []time.Time{day(2), day(4)}, table.Dates)
	assert.Equal(t, [][]float64{{30, 20}, {32, 22}}, table.Prices)
}

func TestCSVSource_Errors(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv")).Fetch(context.Background(), []string{"AAA"}, time.Time{}, time.Time{})
	assert.Error(t, err)

	_, err = NewCSVSource(writeTempCSV(t, wideCSV)).Fetch(context.Background(), []string{"ZZZ"}, time.Time{}, time.Time{})
	assert.Error(t, err)

	_, err = ParseWideCSV(strings.NewReader("when,AAA\n2024-01-02,1\n"))
	assert.Error(t, err)

	_, err = ParseWideCSV(strings.NewReader("date,AAA\n01/02/2024,1\n"))
	assert.Error(t, err)

	_, err = ParseWideCSV(strings.NewReader("date,AAA\n2024-01-02,abc\n"))
	assert.Error(t, err)
}

func TestParseSeriesCSV(t *testing.T) {
	series, err := ParseSeriesCSV("AAA", strings.NewReader("date,close\n2024-01-02,10.5\n2024-01-03,11\n"))
	require.NoError(t, err)
	assert.Equal(t, "AAA", series.AssetID)
	require.Len(t, series.Points, 2)
	assert.Equal(t, 10.5, series.Points[0].Close)

	_, err = ParseSeriesCSV("AAA", strings.NewReader("date,a,b\n"))
	assert.Error(t, err)
}

type fakeDownloader struct {
	objects map[string]string
}

func (f *fakeDownloader) Download(_ context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	body, ok := f.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	n, err := w.WriteAt([]byte(body), 0)
	return int64(n), err
}

func TestS3Source_Fetch(t *testing.T) {
	downloader := &fakeDownloader{objects: map[string]string{
		"prices/daily/AAA.csv": "date,close\n2024-01-02,10\n2024-01-03,11\n2024-01-04,12\n",
		"prices/daily/BBB.csv": "date,close\n2024-01-03,21\n2024-01-04,22\n",
	}}
	source := NewS3SourceWithDownloader(downloader, "prices", "daily", zerolog.Nop())

	table, err := source.Fetch(context.Background(), []string{"AAA", "BBB"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(3), day(4)}, table.Dates)
	assert.Equal(t, [][]float64{{11, 21}, {12, 22}}, table.Prices)

	_, err = source.Fetch(context.Background(), []string{"CCC"}, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://prices/daily/CCC.csv")
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	table domain.PriceTable
	err   error
}

func (c *countingSource) Fetch(context.Context, []string, time.Time, time.Time) (domain.PriceTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.table, c.err
}

func setupCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE price_tables (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE price_series (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);`)
	require.NoError(t, err)
	return clientdata.NewRepository(db)
}

func TestCachedSource_HitsCacheOnSecondFetch(t *testing.T) {
	upstream := &countingSource{table: domain.PriceTable{
		AssetIDs: []string{"AAA"},
		Dates:    []time.Time{day(2), day(3)},
		Prices:   [][]float64{{10}, {11}},
	}}
	cached := NewCachedSource(upstream, setupCache(t), time.Hour, zerolog.Nop())

	first, err := cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
	require.NoError(t, err)
	second, err := cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first, second)
}

func TestCachedSource_KeyDependsOnOrderAndRange(t *testing.T) {
	assert.NotEqual(t, cacheKey([]string{"A", "B"}, day(1), day(2)), cacheKey([]string{"B", "A"}, day(1), day(2)))
	assert.NotEqual(t, cacheKey([]string{"A"}, day(1), day(2)), cacheKey([]string{"A"}, day(1), day(3)))
	assert.Len(t, cacheKey([]string{"A"}, day(1), day(2)), 32)
}

func TestCachedSource_DoesNotCacheEmptyTables(t *testing.T) {
	upstream := &countingSource{table: domain.PriceTable{AssetIDs: []string{"AAA"}}}
	cached := NewCachedSource(upstream, setupCache(t), time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		table, err := cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
		require.NoError(t, err)
		assert.True(t, table.IsEmpty())
	}
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedSource_ServesStaleOnUpstreamError(t *testing.T) {
	repo := setupCache(t)
	stale := domain.PriceTable{AssetIDs: []string{"AAA"}, Prices: [][]float64{{1}, {2}}}
	require.NoError(t, repo.Store(clientdata.TablePriceTables, cacheKey([]string{"AAA"}, day(1), day(5)), stale, -time.Hour))

	upstream := &countingSource{err: errors.New("upstream down")}
	cached := NewCachedSource(upstream, repo, time.Hour, zerolog.Nop())

	table, err := cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
	require.NoError(t, err)
	assert.Equal(t, stale.Prices, table.Prices)

	_, err = cached.Fetch(context.Background(), []string{"BBB"}, day(1), day(5))
	assert.Error(t, err)
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
	table   domain.PriceTable

	mu     sync.Mutex
	calls  int
	ctxErr error
}

func newBlockingSource(table domain.PriceTable) *blockingSource {
	return &blockingSource{started: make(chan struct{}, 1), release: make(chan struct{}), table: table}
}

func (b *blockingSource) Fetch(ctx context.Context, _ []string, _, _ time.Time) (domain.PriceTable, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release

	b.mu.Lock()
	b.ctxErr = ctx.Err()
	b.mu.Unlock()
	return b.table, nil
}

func oneAssetTable() domain.PriceTable {
	return domain.PriceTable{
		AssetIDs: []string{"AAA"},
		Dates:    []time.Time{day(2), day(3)},
		Prices:   [][]float64{{10}, {11}},
	}
}

func TestCachedSource_ConcurrentMissesShareOneFetch(t *testing.T) {
	upstream := newBlockingSource(oneAssetTable())
	cached := NewCachedSource(upstream, setupCache(t), time.Hour, zerolog.Nop())

	const callers = 5
	tables := make([]domain.PriceTable, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], errs[i] = cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
		}(i)
	}

	<-upstream.started
	time.Sleep(50 * time.Millisecond)
	close(upstream.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []float64{10}, tables[i].Prices[0])
	}
	assert.Equal(t, 1, upstream.calls)
}

func TestCachedSource_CancelledCallerDoesNotFailOthers(t *testing.T) {
	upstream := newBlockingSource(oneAssetTable())
	cached := NewCachedSource(upstream, setupCache(t), time.Hour, zerolog.Nop())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cached.Fetch(leaderCtx, []string{"AAA"}, day(1), day(5))
		leaderErr <- err
	}()
	<-upstream.started

	type result struct {
		table domain.PriceTable
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		table, err := cached.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
		follower <- result{table, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(upstream.release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, []string{"AAA"}, res.table.AssetIDs)
	assert.Equal(t, 1, upstream.calls)
	assert.NoError(t, upstream.ctxErr)
}

func TestCachedHistoryClient_CachesPerSymbol(t *testing.T) {
	upstream := &fakeYahoo{bars: map[string][]yahoo.HistoricalPrice{
		"AAA": {{Date: day(2), AdjClose: 10}, {Date: day(3), AdjClose: 11}},
		"BBB": {{Date: day(2), AdjClose: 20}, {Date: day(3), AdjClose: 21}},
	}}
	client := NewCachedHistoryClient(upstream, setupCache(t), time.Hour, zerolog.Nop())
	source := NewYahooSource(client, 2, zerolog.Nop())

	_, err := source.Fetch(context.Background(), []string{"AAA"}, day(1), day(5))
	require.NoError(t, err)
	table, err := source.Fetch(context.Background(), []string{"BBB", "AAA"}, day(1), day(5))
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{20, 10}, {21, 11}}, table.Prices)
	assert.Equal(t, time.UTC, table.Dates[0].Location())
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, upstream.calls)
}

func TestCachedHistoryClient_ServesStaleOnUpstreamError(t *testing.T) {
	repo := setupCache(t)
	stale := []yahoo.HistoricalPrice{{Date: day(2), AdjClose: 10}}
	require.NoError(t, repo.Store(clientdata.TablePriceSeries, seriesKey("AAA", day(1), day(5)), stale, -time.Hour))

	upstream := &fakeYahoo{err: errors.New("rate limited")}
	client := NewCachedHistoryClient(upstream, repo, time.Hour, zerolog.Nop())

	bars, err := client.GetHistoricalPrices(context.Background(), "AAA", day(1), day(5))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.0, bars[0].AdjClose)
	assert.True(t, bars[0].Date.Equal(day(2)))

	_, err = client.GetHistoricalPrices(context.Background(), "BBB", day(1), day(5))
	assert.Error(t, err)
}

func TestCachedHistoryClient_SkipsEmptySeries(t *testing.T) {
	upstream := &fakeYahoo{bars: map[string][]yahoo.HistoricalPrice{}}
	client := NewCachedHistoryClient(upstream, setupCache(t), time.Hour, zerolog.Nop())

	for i := 0; i < 2; i++ {
		bars, err := client.GetHistoricalPrices(context.Background(), "AAA", day(1), day(5))
		require.NoError(t, err)
		assert.Empty(t, bars)
	}
	assert.Len(t, upstream.calls, 2)
}
