// Package yahoo provides a client for the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Yahoo Finance API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// ErrSymbolNotFound is returned when Yahoo does not know the requested symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// HistoricalPrice is one daily bar.
type HistoricalPrice struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// Config holds client settings. Zero values select defaults.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a Yahoo Finance API client. Requests are rate limited and pass
// through a circuit breaker that opens after repeated upstream failures.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     log.With().Str("client", "yahoo").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		// Unknown symbols are caller errors, not upstream failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSymbolNotFound)
		},
	})

	return c
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetHistoricalPrices returns daily bars for symbol between start (inclusive)
// and end (exclusive), oldest first. Rows without a close price are skipped.
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]HistoricalPrice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchChart(ctx, symbol, start, end)
	})
	if err != nil {
		return nil, err
	}

	var result chartResponse
	if err := json.Unmarshal(body.([]byte), &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("Yahoo Finance API error: %s: %s", result.Chart.Error.Code, result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No historical data returned")
		return []HistoricalPrice{}, nil
	}

	chartData := result.Chart.Result[0]
	quote := chartData.Indicators.Quote[0]

	var adjCloseData []*float64
	if len(chartData.Indicators.AdjClose) > 0 {
		adjCloseData = chartData.Indicators.AdjClose[0].AdjClose
	}

	prices := make([]HistoricalPrice, 0, len(chartData.Timestamp))
	for i, ts := range chartData.Timestamp {
		closePrice := valueAt(quote.Close, i)
		// Yahoo returns null bars for halted days
		if closePrice == 0 {
			continue
		}

		adjClose := valueAt(adjCloseData, i)
		if adjClose == 0 {
			adjClose = closePrice
		}

		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		prices = append(prices, HistoricalPrice{
			Date:     time.Unix(ts, 0).UTC(),
			Open:     valueAt(quote.Open, i),
			High:     valueAt(quote.High, i),
			Low:      valueAt(quote.Low, i),
			Close:    closePrice,
			AdjClose: adjClose,
			Volume:   volume,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Time("start", start).
		Time("end", end).
		Int("count", len(prices)).
		Msg("Fetched historical prices")

	return prices, nil
}

func (c *Client) fetchChart(ctx context.Context, symbol string, start, end time.Time) ([]byte, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", strconv.FormatInt(start.Unix(), 10))
	params.Add("period2", strconv.FormatInt(end.Unix(), 10))
	params.Add("events", "div,split")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical data: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
