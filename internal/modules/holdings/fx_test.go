package holdings

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRateSource mocks the upstream FX oracle
type MockRateSource struct {
	mock.Mock
}

func (m *MockRateSource) GetFxRate(ctx context.Context, from, to string) (float64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func TestConverterIdentity(t *testing.T) {
	source := new(MockRateSource)
	fx := NewConverter(source, zerolog.Nop())

	for _, currency := range []string{"USD", "GBP", "EUR", "JPY"} {
		rate := fx.Rate(context.Background(), currency, currency)
		require.NotNil(t, rate)
		assert.Equal(t, 1.0, *rate)
	}

	// Identity short-circuits without any upstream lookup
	source.AssertNotCalled(t, "GetFxRate")
}

func TestConverterCacheReuse(t *testing.T) {
	source := new(MockRateSource)
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()

	fx := NewConverter(source, zerolog.Nop())

	for i := 0; i < 5; i++ {
		rate := fx.Rate(context.Background(), "USD", "GBP")
		require.NotNil(t, rate)
		assert.Equal(t, 0.8, *rate)
	}

	// At most one upstream lookup per pair per request
	source.AssertNumberOfCalls(t, "GetFxRate", 1)
}

func TestConverterFailureNotCached(t *testing.T) {
	source := new(MockRateSource)
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.0, fmt.Errorf("oracle down")).Once()
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()

	fx := NewConverter(source, zerolog.Nop())

	// First lookup fails and returns nil
	assert.Nil(t, fx.Rate(context.Background(), "USD", "GBP"))

	// The failure was not cached, so the retry reaches upstream
	rate := fx.Rate(context.Background(), "USD", "GBP")
	require.NotNil(t, rate)
	assert.Equal(t, 0.8, *rate)

	source.AssertNumberOfCalls(t, "GetFxRate", 2)
}

func TestConverterNilSource(t *testing.T) {
	fx := NewConverter(nil, zerolog.Nop())

	// Identity still works without a source
	rate := fx.Rate(context.Background(), "USD", "USD")
	require.NotNil(t, rate)
	assert.Equal(t, 1.0, *rate)

	assert.Nil(t, fx.Rate(context.Background(), "USD", "GBP"))
}

func TestConverterRatesUsed(t *testing.T) {
	source := new(MockRateSource)
	source.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil).Once()

	fx := NewConverter(source, zerolog.Nop())
	fx.Rate(context.Background(), "USD", "GBP")
	fx.Rate(context.Background(), "USD", "USD")

	used := fx.RatesUsed()
	assert.Equal(t, map[string]float64{"USD:GBP": 0.8}, used)
}
