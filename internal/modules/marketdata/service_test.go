package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
)

// MockMarketClient mocks the upstream market data client
type MockMarketClient struct {
	mock.Mock
}

func (m *MockMarketClient) GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*yahoo.Quote), args.Error(1)
}

func (m *MockMarketClient) GetFxRate(ctx context.Context, from, to string) (float64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockMarketClient) GetHistory(ctx context.Context, symbol, rng, interval string) ([]yahoo.Candle, error) {
	args := m.Called(ctx, symbol, rng, interval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]yahoo.Candle), args.Error(1)
}

func setupCacheRepo(t *testing.T) (*cachedata.Repository, *sql.DB) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := cachedata.NewRepository(db)
	require.NoError(t, repo.InitSchema())
	return repo, db
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestGetLivePriceCachesQuote(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	client.On("GetQuote", mock.Anything, "AAPL").Return(&yahoo.Quote{
		Symbol:   "AAPL",
		Price:    floatPtr(150.0),
		Currency: "USD",
		Source:   "yahoo",
	}, nil).Once()

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	quote, err := svc.GetLivePrice(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, 150.0, *quote.Price)
	assert.Equal(t, "yahoo", quote.Source)

	// Second call is served from cache, no upstream hit
	quote, err = svc.GetLivePrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, *quote.Price)
	assert.Equal(t, "cache", quote.Source)

	client.AssertNumberOfCalls(t, "GetQuote", 1)

	// Symbol becomes tracked for background refresh
	symbols, err := repo.TrackedSymbols()
	require.NoError(t, err)
	assert.Contains(t, symbols, "AAPL")
}

func TestGetLivePriceNullNotCached(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	client.On("GetQuote", mock.Anything, "XYZ.PVT").Return(&yahoo.Quote{
		Symbol:   "XYZ.PVT",
		Price:    nil,
		Currency: "",
		Source:   "yahoo",
	}, nil).Twice()

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	quote, err := svc.GetLivePrice(context.Background(), "XYZ.PVT")
	require.NoError(t, err)
	assert.Nil(t, quote.Price)

	// Null price was not cached, so the next call goes upstream again
	_, err = svc.GetLivePrice(context.Background(), "XYZ.PVT")
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "GetQuote", 2)
}

func TestGetLivePriceStaleFallback(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	// Expired cache entry from an earlier fetch
	require.NoError(t, repo.Store("current_prices", "AAPL", &yahoo.Quote{
		Symbol: "AAPL", Price: floatPtr(140.0), Currency: "USD", Source: "yahoo",
	}, -time.Minute))

	client.On("GetQuote", mock.Anything, "AAPL").Return(nil, fmt.Errorf("upstream down"))

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	quote, err := svc.GetLivePrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 140.0, *quote.Price)
	assert.Equal(t, "cache", quote.Source)
}

func TestGetFxRateIdentity(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	rate, err := svc.GetFxRate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	client.AssertNotCalled(t, "GetFxRate")
}

func TestGetFxRateCached(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	client.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	rate, err := svc.GetFxRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rate)

	rate, err = svc.GetFxRate(context.Background(), "usd", "gbp")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rate)

	client.AssertNumberOfCalls(t, "GetFxRate", 1)
}

func TestGetFxRateFailureNotCached(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	client.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.0, fmt.Errorf("no rate")).Once()
	client.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	_, err := svc.GetFxRate(context.Background(), "USD", "GBP")
	assert.Error(t, err)

	// Failure was not cached, so the retry reaches upstream and succeeds
	rate, err := svc.GetFxRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.8, rate)
}

func TestGetIndicators(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	candles := make([]yahoo.Candle, 60)
	for i := range candles {
		price := 100.0 + float64(i)
		candles[i] = yahoo.Candle{
			Timestamp: int64(1700000000 + i*86400),
			Close:     &price,
		}
	}

	client.On("GetHistory", mock.Anything, "AAPL", "6mo", "1d").Return(candles, nil)

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	ind, err := svc.GetIndicators(context.Background(), "AAPL", "")
	require.NoError(t, err)

	assert.Equal(t, 60, ind.Samples)
	assert.Equal(t, 159.0, ind.LastClose)
	require.NotNil(t, ind.SMA20)
	assert.InDelta(t, 149.5, *ind.SMA20, 0.001)
	require.NotNil(t, ind.SMA50)
	require.NotNil(t, ind.RSI14)
	// Monotonically rising closes pin RSI to 100
	assert.InDelta(t, 100.0, *ind.RSI14, 0.001)
	require.NotNil(t, ind.AnnualizedVol)
	assert.Greater(t, *ind.AnnualizedVol, 0.0)
}

func TestGetIndicatorsInsufficientHistory(t *testing.T) {
	repo, _ := setupCacheRepo(t)
	client := new(MockMarketClient)

	price := 100.0
	client.On("GetHistory", mock.Anything, "NEW", "6mo", "1d").Return([]yahoo.Candle{
		{Timestamp: 1700000000, Close: &price},
	}, nil)

	svc := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())

	_, err := svc.GetIndicators(context.Background(), "NEW", "")
	assert.Error(t, err)
}
