// Package marketdata provides cached access to live prices, FX rates and
// historical candles. Reads are cache-first with a stale fallback when the
// upstream is unreachable; concurrent lookups for the same key are
// deduplicated.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CommonFxPairs are kept warm by the background FX refresh job.
var CommonFxPairs = [][2]string{
	{"USD", "GBP"}, {"GBP", "USD"},
	{"USD", "EUR"}, {"EUR", "USD"},
	{"USD", "CAD"}, {"CAD", "USD"},
	{"USD", "JPY"}, {"JPY", "USD"},
	{"USD", "CHF"}, {"CHF", "USD"},
	{"EUR", "GBP"}, {"GBP", "EUR"},
}

// MarketClient is the upstream the service delegates to on cache misses.
type MarketClient interface {
	GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error)
	GetFxRate(ctx context.Context, from, to string) (float64, error)
	GetHistory(ctx context.Context, symbol, rng, interval string) ([]yahoo.Candle, error)
}

// Service provides cached market data lookups.
type Service struct {
	client    MarketClient
	cacheRepo *cachedata.Repository
	priceTTL  time.Duration
	fxTTL     time.Duration
	log       zerolog.Logger
	group     singleflight.Group
}

// NewService creates a market data service.
// Zero TTLs fall back to the package defaults.
func NewService(client MarketClient, cacheRepo *cachedata.Repository, priceTTL, fxTTL time.Duration, log zerolog.Logger) *Service {
	if priceTTL <= 0 {
		priceTTL = cachedata.TTLCurrentPrice
	}
	if fxTTL <= 0 {
		fxTTL = cachedata.TTLExchangeRate
	}
	return &Service{
		client:    client,
		cacheRepo: cacheRepo,
		priceTTL:  priceTTL,
		fxTTL:     fxTTL,
		log:       log.With().Str("component", "marketdata").Logger(),
	}
}

// cachedFxRate is the structure stored in the exchange_rates table.
type cachedFxRate struct {
	Rate float64 `json:"rate"`
}

// GetLivePrice returns the current quote for a symbol, cache-first.
// The symbol is recorded as tracked so refresh jobs keep it warm.
// A quote without a price is returned as-is and never cached.
func (s *Service) GetLivePrice(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	if err := s.cacheRepo.TrackSymbol(symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to track symbol")
	}

	if data, err := s.cacheRepo.GetIfFresh("current_prices", symbol); err == nil && data != nil {
		var cached yahoo.Quote
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.Source = "cache"
			return &cached, nil
		}
	}

	result, err, _ := s.group.Do("price:"+symbol, func() (interface{}, error) {
		return s.fetchAndStoreQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	return result.(*yahoo.Quote), nil
}

// RefreshPrice bypasses the cache and fetches a symbol's quote upstream.
// Used by the background refresh job.
func (s *Service) RefreshPrice(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	result, err, _ := s.group.Do("price:"+symbol, func() (interface{}, error) {
		return s.fetchAndStoreQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return result.(*yahoo.Quote), nil
}

func (s *Service) fetchAndStoreQuote(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		// Upstream failed - stale cache beats no data
		if stale := s.staleQuote(symbol); stale != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Upstream failed, using stale cached quote")
			return stale, nil
		}
		return nil, err
	}

	// Null prices are never cached so the next call retries upstream
	if quote.Price != nil {
		if err := s.cacheRepo.Store("current_prices", symbol, quote, s.priceTTL); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	return quote, nil
}

func (s *Service) staleQuote(symbol string) *yahoo.Quote {
	data, err := s.cacheRepo.Get("current_prices", symbol)
	if err != nil || data == nil {
		return nil
	}
	var cached yahoo.Quote
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	cached.Source = "cache"
	return &cached
}

// GetFxRate returns how many units of to one unit of from buys, cache-first.
func (s *Service) GetFxRate(ctx context.Context, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("both currencies are required")
	}
	if from == to {
		return 1.0, nil
	}

	cacheKey := from + ":" + to

	if data, err := s.cacheRepo.GetIfFresh("exchange_rates", cacheKey); err == nil && data != nil {
		var cached cachedFxRate
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.Rate, nil
		}
	}

	result, err, _ := s.group.Do("fx:"+cacheKey, func() (interface{}, error) {
		return s.fetchAndStoreFxRate(ctx, from, to, cacheKey)
	})
	if err != nil {
		return 0, err
	}

	return result.(float64), nil
}

// RefreshFxRate bypasses the cache and fetches a pair upstream.
func (s *Service) RefreshFxRate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1.0, nil
	}
	cacheKey := from + ":" + to
	result, err, _ := s.group.Do("fx:"+cacheKey, func() (interface{}, error) {
		return s.fetchAndStoreFxRate(ctx, from, to, cacheKey)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

func (s *Service) fetchAndStoreFxRate(ctx context.Context, from, to, cacheKey string) (float64, error) {
	rate, err := s.client.GetFxRate(ctx, from, to)
	if err != nil {
		if data, getErr := s.cacheRepo.Get("exchange_rates", cacheKey); getErr == nil && data != nil {
			var cached cachedFxRate
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				s.log.Warn().Err(err).Str("pair", cacheKey).Msg("Upstream failed, using stale cached rate")
				return cached.Rate, nil
			}
		}
		return 0, err
	}

	if err := s.cacheRepo.Store("exchange_rates", cacheKey, cachedFxRate{Rate: rate}, s.fxTTL); err != nil {
		s.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache exchange rate")
	}

	return rate, nil
}

// GetHistory returns OHLCV bars straight from upstream.
func (s *Service) GetHistory(ctx context.Context, symbol, rng, interval string) ([]yahoo.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	return s.client.GetHistory(ctx, symbol, rng, interval)
}
