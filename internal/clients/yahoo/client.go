// Package yahoo provides a client for Yahoo Finance market data.
// Vendor payloads are flattened into typed results here so callers
// never branch on upstream JSON shapes.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches quotes, FX rates and historical candles.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
// baseURL may be empty, in which case the public host is used.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// Quote is a point-in-time price for a symbol.
// Price is nil when the upstream has no current price for the symbol.
type Quote struct {
	Symbol   string   `json:"symbol"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
	Name     string   `json:"name,omitempty"`
	Source   string   `json:"source"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    *int64   `json:"volume"`
}

// chartResponse mirrors the subset of the chart API we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				Currency           string   `json:"currency"`
				ShortName          string   `json:"shortName"`
				LongName           string   `json:"longName"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote fetches the current price for a symbol.
// A symbol that exists but has no current price yields a Quote with a nil
// Price rather than an error.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	resp, err := c.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := resp.Chart.Result[0].Meta

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}

	quote := &Quote{
		Symbol:   symbol,
		Price:    meta.RegularMarketPrice,
		Currency: meta.Currency,
		Name:     name,
		Source:   "yahoo",
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("currency", quote.Currency).
		Msg("Fetched quote")

	return quote, nil
}

// GetFxRate fetches the rate for converting one unit of from into to.
// Identity pairs are the caller's concern; this always hits upstream.
func (c *Client) GetFxRate(ctx context.Context, from, to string) (float64, error) {
	pair := strings.ToUpper(from) + strings.ToUpper(to) + "=X"

	quote, err := c.GetQuote(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("fx lookup %s->%s failed: %w", from, to, err)
	}
	if quote.Price == nil {
		return 0, fmt.Errorf("fx rate not available for %s->%s", from, to)
	}

	return *quote.Price, nil
}

// GetHistory fetches OHLCV bars for a symbol.
// rng examples: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, ytd, max.
// interval examples: 1m, 5m, 1h, 1d, 1wk, 1mo.
func (c *Client) GetHistory(ctx context.Context, symbol, rng, interval string) ([]Candle, error) {
	if rng == "" {
		rng = "1mo"
	}
	if interval == "" {
		interval = "1d"
	}

	resp, err := c.fetchChart(ctx, symbol, rng, interval)
	if err != nil {
		return nil, err
	}

	return transformCandles(resp), nil
}

// fetchChart calls the chart endpoint and validates the envelope.
func (c *Client) fetchChart(ctx context.Context, symbol, rng, interval string) (*chartResponse, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(rng), url.QueryEscape(interval))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "superfinance/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d for %s", resp.StatusCode, symbol)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w", symbol, err)
	}

	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart data for %s", symbol)
	}

	return &parsed, nil
}

// transformCandles flattens the columnar chart arrays into bars.
func transformCandles(resp *chartResponse) []Candle {
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	quote := result.Indicators.Quote[0]
	candles := make([]Candle, 0, len(result.Timestamp))

	at := func(vals []*float64, i int) *float64 {
		if i < len(vals) {
			return vals[i]
		}
		return nil
	}

	for i, ts := range result.Timestamp {
		candle := Candle{
			Timestamp: ts,
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     at(quote.Close, i),
		}
		if i < len(quote.Volume) {
			candle.Volume = quote.Volume[i]
		}
		candles = append(candles, candle)
	}

	return candles
}
