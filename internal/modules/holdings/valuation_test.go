package holdings

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 {
	return &v
}

func TestValuePositionBasic(t *testing.T) {
	raw := RawPosition{
		Symbol:      "AAPL",
		Units:       10,
		Currency:    "USD",
		AverageCost: ptr(100),
	}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "", nil)

	assert.Equal(t, "live", pos.PriceSource)
	require.NotNil(t, pos.MarketValue)
	assert.Equal(t, 1500.0, *pos.MarketValue)
	require.NotNil(t, pos.CostBasis)
	assert.Equal(t, 1000.0, *pos.CostBasis)
	require.NotNil(t, pos.UnrealizedPnL)
	assert.Equal(t, 500.0, *pos.UnrealizedPnL)
	require.NotNil(t, pos.UnrealizedPnLPct)
	assert.Equal(t, 50.0, *pos.UnrealizedPnLPct)
}

func TestValuePositionNullPricePropagates(t *testing.T) {
	raw := RawPosition{
		Symbol:      "VOD.L",
		Units:       5,
		Currency:    "GBP",
		AverageCost: ptr(100),
	}

	pos := ValuePosition(context.Background(), raw, nil, "", nil)

	// Null price means null market value, never zero
	assert.Nil(t, pos.Price)
	assert.Equal(t, "none", pos.PriceSource)
	assert.Nil(t, pos.MarketValue)
	assert.Nil(t, pos.UnrealizedPnL)
	assert.Nil(t, pos.UnrealizedPnLPct)

	// Cost basis is still derivable on its own
	require.NotNil(t, pos.CostBasis)
	assert.Equal(t, 500.0, *pos.CostBasis)
}

func TestValuePositionNullCostPropagates(t *testing.T) {
	raw := RawPosition{
		Symbol:   "AAPL",
		Units:    10,
		Currency: "USD",
	}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "", nil)

	require.NotNil(t, pos.MarketValue)
	assert.Nil(t, pos.CostBasis)
	assert.Nil(t, pos.UnrealizedPnL)
}

func TestValuePositionManualDefaultsCostBasisZero(t *testing.T) {
	raw := RawPosition{
		Symbol:               "MYSTARTUP.PVT",
		Units:                1000,
		Currency:             "USD",
		FallbackPrice:        ptr(12.5),
		FallbackSource:       "manual",
		DefaultCostBasisZero: true,
	}

	pos := ValuePosition(context.Background(), raw, nil, "", nil)

	assert.Equal(t, "manual", pos.PriceSource)
	require.NotNil(t, pos.MarketValue)
	assert.Equal(t, 12500.0, *pos.MarketValue)

	// Cost basis defaults to 0, which suppresses P&L: a zero basis would
	// otherwise imply an infinite gain
	require.NotNil(t, pos.CostBasis)
	assert.Equal(t, 0.0, *pos.CostBasis)
	assert.Nil(t, pos.UnrealizedPnL)
	assert.Nil(t, pos.UnrealizedPnLPct)
}

func TestValuePositionLiveBeatsFallback(t *testing.T) {
	raw := RawPosition{
		Symbol:         "AAPL",
		Units:          1,
		Currency:       "USD",
		FallbackPrice:  ptr(140),
		FallbackSource: "broker",
	}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "", nil)

	assert.Equal(t, 150.0, *pos.Price)
	assert.Equal(t, "live", pos.PriceSource)
}

func TestValuePositionOptionMultiplier(t *testing.T) {
	raw := RawPosition{
		Symbol:         "AAPL  240119C00150000",
		Units:          2,
		Currency:       "USD",
		AverageCost:    ptr(3),
		FallbackPrice:  ptr(5),
		FallbackSource: "broker",
		Multiplier:     OptionMultiplier(false),
		IsOption:       true,
	}

	pos := ValuePosition(context.Background(), raw, nil, "", nil)

	require.NotNil(t, pos.MarketValue)
	assert.Equal(t, 1000.0, *pos.MarketValue) // 2 * 5 * 100
	require.NotNil(t, pos.CostBasis)
	assert.Equal(t, 600.0, *pos.CostBasis)
	require.NotNil(t, pos.UnrealizedPnL)
	assert.Equal(t, 400.0, *pos.UnrealizedPnL)
	assert.Equal(t, 66.67, *pos.UnrealizedPnLPct)
}

func TestValuePositionMiniOptionMultiplier(t *testing.T) {
	raw := RawPosition{
		Symbol:         "XSP   240119C00500000",
		Units:          1,
		Currency:       "USD",
		FallbackPrice:  ptr(4),
		FallbackSource: "broker",
		Multiplier:     OptionMultiplier(true),
		IsOption:       true,
	}

	pos := ValuePosition(context.Background(), raw, nil, "", nil)

	require.NotNil(t, pos.MarketValue)
	assert.Equal(t, 40.0, *pos.MarketValue) // 1 * 4 * 10
}

func TestValuePositionShortOptionUsesAbsCostBasis(t *testing.T) {
	// Short premium: negative average cost
	raw := RawPosition{
		Symbol:         "AAPL  240119P00140000",
		Units:          2,
		Currency:       "USD",
		AverageCost:    ptr(-3),
		FallbackPrice:  ptr(5),
		FallbackSource: "broker",
		Multiplier:     OptionMultiplier(false),
		IsOption:       true,
	}

	pos := ValuePosition(context.Background(), raw, nil, "", nil)

	require.NotNil(t, pos.CostBasis)
	assert.Equal(t, -600.0, *pos.CostBasis)
	require.NotNil(t, pos.UnrealizedPnL)
	assert.Equal(t, 1600.0, *pos.UnrealizedPnL)
	// Percentage uses abs(cost_basis) so its sign stays meaningful
	assert.Equal(t, 266.67, *pos.UnrealizedPnLPct)
}

func TestValuePositionConverted(t *testing.T) {
	source := new(MockRateSource)
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()
	fx := NewConverter(source, zerolog.Nop())

	raw := RawPosition{
		Symbol:      "AAPL",
		Units:       10,
		Currency:    "USD",
		AverageCost: ptr(100),
	}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "GBP", fx)

	require.NotNil(t, pos.Converted)
	assert.Equal(t, "GBP", pos.Converted.Currency)
	assert.Equal(t, 0.8, pos.Converted.FxRate)
	require.NotNil(t, pos.Converted.MarketValue)
	assert.Equal(t, 1200.0, *pos.Converted.MarketValue)
	require.NotNil(t, pos.Converted.CostBasis)
	assert.Equal(t, 800.0, *pos.Converted.CostBasis)
	require.NotNil(t, pos.Converted.UnrealizedPnL)
	assert.Equal(t, 400.0, *pos.Converted.UnrealizedPnL)
}

func TestValuePositionConvertedOmittedOnMissingRate(t *testing.T) {
	source := new(MockRateSource)
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.0, assert.AnError)
	fx := NewConverter(source, zerolog.Nop())

	raw := RawPosition{Symbol: "AAPL", Units: 10, Currency: "USD"}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "GBP", fx)

	// A missing rate degrades the position, it does not fail it
	require.NotNil(t, pos.MarketValue)
	assert.Nil(t, pos.Converted)
}

func TestValuePositionNoConversionForSameCurrency(t *testing.T) {
	source := new(MockRateSource)
	fx := NewConverter(source, zerolog.Nop())

	raw := RawPosition{Symbol: "AAPL", Units: 10, Currency: "USD"}
	quote := &Quote{Price: ptr(150), Source: "live"}

	pos := ValuePosition(context.Background(), raw, quote, "USD", fx)

	assert.Nil(t, pos.Converted)
	source.AssertNotCalled(t, "GetFxRate")
}
