package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
)

func TestRefreshPricesJob(t *testing.T) {
	repo, db := setupCacheRepo(t)
	defer db.Close()

	require.NoError(t, repo.TrackSymbol("AAPL"))
	require.NoError(t, repo.TrackSymbol("MSFT"))

	client := new(MockMarketClient)
	price := 150.0
	client.On("GetQuote", mock.Anything, "AAPL").
		Return(&yahoo.Quote{Symbol: "AAPL", Price: &price, Currency: "USD", Source: "yahoo"}, nil)
	client.On("GetQuote", mock.Anything, "MSFT").
		Return(nil, assert.AnError)

	service := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())
	job := NewRefreshPricesJob(service, repo, zerolog.Nop())

	assert.Equal(t, "refresh_prices", job.Name())

	// One failing symbol does not fail the run
	require.NoError(t, job.Run())
	client.AssertNumberOfCalls(t, "GetQuote", 2)

	last, err := repo.LastRefresh("prices")
	require.NoError(t, err)
	assert.False(t, last.IsZero())

	// The cache is now warm for the symbol that succeeded
	quote, err := service.GetLivePrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "cache", quote.Source)
	client.AssertNumberOfCalls(t, "GetQuote", 2)
}

func TestRefreshFxJob(t *testing.T) {
	repo, db := setupCacheRepo(t)
	defer db.Close()

	client := new(MockMarketClient)
	client.On("GetFxRate", mock.Anything, mock.Anything, mock.Anything).Return(0.8, nil)

	service := NewService(client, repo, time.Minute, time.Minute, zerolog.Nop())
	job := NewRefreshFxJob(service, repo, zerolog.Nop())

	assert.Equal(t, "refresh_fx", job.Name())
	require.NoError(t, job.Run())

	client.AssertNumberOfCalls(t, "GetFxRate", len(CommonFxPairs))

	last, err := repo.LastRefresh("fx")
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}
