package holdings

import (
	"context"
	"testing"

	"github.com/asturkmani/superfinance-mcp/internal/clients/snaptrade"
	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBrokerageSource struct {
	mock.Mock
}

func (m *MockBrokerageSource) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBrokerageSource) ListAccounts(ctx context.Context, userID, userSecret string) ([]snaptrade.Account, error) {
	args := m.Called(ctx, userID, userSecret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]snaptrade.Account), args.Error(1)
}

func (m *MockBrokerageSource) GetAccountHoldings(ctx context.Context, accountID, userID, userSecret string) (*snaptrade.Holdings, error) {
	args := m.Called(ctx, accountID, userID, userSecret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snaptrade.Holdings), args.Error(1)
}

type MockManualSource struct {
	mock.Mock
}

func (m *MockManualSource) LoadPortfolios() ([]ManualPortfolio, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ManualPortfolio), args.Error(1)
}

type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) GetLivePrice(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*yahoo.Quote), args.Error(1)
}

func brokerHoldings(accountID string) *snaptrade.Holdings {
	return &snaptrade.Holdings{
		Account: snaptrade.Account{ID: accountID, Name: "Robinhood Individual"},
		Positions: []snaptrade.Position{
			{
				Symbol:               "AAPL",
				Description:          "Apple Inc",
				Units:                10,
				Price:                ptr(150),
				AveragePurchasePrice: ptr(100),
				Currency:             "USD",
			},
		},
		Balances:   []snaptrade.Balance{{Currency: "USD", Cash: -200}},
		TotalValue: &snaptrade.Amount{Value: 1300, Currency: "USD"},
	}
}

func TestConsolidateBrokerageAndManual(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1", Name: "Robinhood Individual"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)

	manual := new(MockManualSource)
	manual.On("LoadPortfolios").Return([]ManualPortfolio{
		{
			ID:   "p-1",
			Name: "Angel investments",
			Positions: []ManualPosition{
				{Symbol: "MYSTARTUP.PVT", Units: 100, Currency: "USD", ManualPrice: ptr(5)},
			},
		},
	}, nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	svc := NewService(Config{
		Broker: broker,
		Manual: manual,
		Prices: prices,
	}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)
	require.Len(t, result.Accounts, 2)

	brokerage := result.Accounts[0]
	assert.Equal(t, "acc-1", brokerage.AccountID)
	assert.Equal(t, "brokerage", brokerage.Source)
	assert.Empty(t, brokerage.Error)
	require.Len(t, brokerage.Positions, 1)
	assert.Equal(t, "broker", brokerage.Positions[0].PriceSource)
	assert.Equal(t, 1500.0, *brokerage.Positions[0].MarketValue)
	assert.Equal(t, 1300.0, brokerage.Totals.Value["USD"])

	// Margin note is scoped to the brokerage account
	require.Len(t, brokerage.Notes, 1)
	assert.Equal(t, "margin", brokerage.Notes[0].Type)

	portfolio := result.Accounts[1]
	assert.Equal(t, "p-1", portfolio.PortfolioID)
	assert.Equal(t, "manual", portfolio.Source)
	assert.Equal(t, 500.0, portfolio.Totals.Value["USD"])
	assert.Empty(t, portfolio.Notes)

	// Grand totals add the two accounts
	assert.Equal(t, 2000.0, result.Totals.Holdings["USD"])
	assert.Equal(t, -200.0, result.Totals.Cash["USD"])
	assert.Equal(t, 1800.0, result.Totals.Value["USD"])
	assert.NotEmpty(t, result.AsOf)
}

func TestConsolidateLivePriceOverridesBroker(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, "AAPL").
		Return(&yahoo.Quote{Symbol: "AAPL", Price: ptr(160), Source: "yahoo"}, nil)

	svc := NewService(Config{Broker: broker, Prices: prices}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)

	pos := result.Accounts[0].Positions[0]
	assert.Equal(t, 160.0, *pos.Price)
	assert.Equal(t, "live", pos.PriceSource)
	assert.Equal(t, 1600.0, *pos.MarketValue)
}

func TestConsolidateCachedQuoteSource(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, "AAPL").
		Return(&yahoo.Quote{Symbol: "AAPL", Price: ptr(155), Source: "cache"}, nil)

	svc := NewService(Config{Broker: broker, Prices: prices}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)

	assert.Equal(t, "cache", result.Accounts[0].Positions[0].PriceSource)
}

func TestConsolidateAccountFailureBecomesErrorSlot(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{
			{ID: "acc-1"},
			{ID: "acc-2", Name: "IBKR Margin"},
		}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-2", "user-1", "secret-1").
		Return(nil, assert.AnError)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	svc := NewService(Config{Broker: broker, Prices: prices}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)
	require.Len(t, result.Accounts, 2)

	failed := result.Accounts[1]
	assert.Equal(t, "acc-2", failed.AccountID)
	assert.Equal(t, "IBKR Margin", failed.Name)
	assert.NotEmpty(t, failed.Error)
	assert.Nil(t, failed.Totals)

	// Failed accounts do not contribute to the grand totals
	assert.Equal(t, 1500.0, result.Totals.Holdings["USD"])
	assert.Equal(t, 1300.0, result.Totals.Value["USD"])
}

func TestConsolidateListAccountsFailureDegrades(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return(nil, assert.AnError)

	manual := new(MockManualSource)
	manual.On("LoadPortfolios").Return([]ManualPortfolio{
		{
			ID:   "p-1",
			Name: "Savings",
			Positions: []ManualPosition{
				{Symbol: "CASHFUND", Units: 100, Currency: "USD", ManualPrice: ptr(1)},
			},
		},
	}, nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	svc := NewService(Config{Broker: broker, Manual: manual, Prices: prices}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)
	require.Len(t, result.Accounts, 2)

	assert.NotEmpty(t, result.Accounts[0].Error)
	assert.Equal(t, 100.0, result.Totals.Value["USD"])
}

func TestConsolidateNoSourcesFails(t *testing.T) {
	manual := new(MockManualSource)
	manual.On("LoadPortfolios").Return([]ManualPortfolio{}, nil)

	svc := NewService(Config{Manual: manual}, zerolog.Nop())

	_, err := svc.Consolidate(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no holdings sources configured")
}

func TestConsolidateDefaultCredentials(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "default-user", "default-secret").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "default-user", "default-secret").
		Return(brokerHoldings("acc-1"), nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	svc := NewService(Config{
		Broker:            broker,
		Prices:            prices,
		DefaultUserID:     "default-user",
		DefaultUserSecret: "default-secret",
	}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, result.Accounts, 1)
	broker.AssertExpectations(t)
}

func TestConsolidateReportingCurrencyRollup(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	rates := new(MockRateSource)
	rates.On("GetFxRate", mock.Anything, "USD", "GBP").Return(0.8, nil)

	svc := NewService(Config{Broker: broker, Prices: prices, Rates: rates}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{
		UserID:            "user-1",
		UserSecret:        "secret-1",
		ReportingCurrency: "gbp",
	})
	require.NoError(t, err)
	assert.Equal(t, "GBP", result.ReportingCurrency)

	pos := result.Accounts[0].Positions[0]
	require.NotNil(t, pos.Converted)
	assert.Equal(t, 1200.0, *pos.Converted.MarketValue)

	require.NotNil(t, result.Totals.Converted)
	assert.Equal(t, "GBP", result.Totals.Converted.Currency)
	assert.Equal(t, 1200.0, result.Totals.Converted.Holdings)
	assert.Equal(t, -160.0, result.Totals.Converted.Cash)
	assert.Equal(t, 1040.0, result.Totals.Converted.Value)
}

func TestConsolidateOptionPositions(t *testing.T) {
	holdings := &snaptrade.Holdings{
		Account: snaptrade.Account{ID: "acc-1"},
		OptionPositions: []snaptrade.OptionPosition{
			{
				Ticker:               "AAPL  240119C00150000",
				UnderlyingSymbol:     "AAPL",
				Units:                2,
				Price:                ptr(5),
				AveragePurchasePrice: ptr(3),
				Currency:             "USD",
			},
		},
	}

	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(holdings, nil)

	svc := NewService(Config{Broker: broker}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)

	account := result.Accounts[0]
	require.Len(t, account.OptionPositions, 1)
	opt := account.OptionPositions[0]
	assert.Equal(t, 1000.0, *opt.MarketValue) // 2 contracts * 5 * 100
	assert.Equal(t, 600.0, *opt.CostBasis)
	assert.Equal(t, 1000.0, account.Totals.Holdings["USD"])
}

type stubLabeler struct{}

func (stubLabeler) Label(_ context.Context, symbol, _ string) (string, string) {
	if symbol == "AAPL" {
		return "Apple", "Technology"
	}
	return symbol, "Other"
}

func TestConsolidateAttachesLabels(t *testing.T) {
	broker := new(MockBrokerageSource)
	broker.On("Configured").Return(true)
	broker.On("ListAccounts", mock.Anything, "user-1", "secret-1").
		Return([]snaptrade.Account{{ID: "acc-1"}}, nil)
	broker.On("GetAccountHoldings", mock.Anything, "acc-1", "user-1", "secret-1").
		Return(brokerHoldings("acc-1"), nil)

	prices := new(MockPriceSource)
	prices.On("GetLivePrice", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	svc := NewService(Config{Broker: broker, Prices: prices, Labeler: stubLabeler{}}, zerolog.Nop())

	result, err := svc.Consolidate(context.Background(), Params{UserID: "user-1", UserSecret: "secret-1"})
	require.NoError(t, err)

	pos := result.Accounts[0].Positions[0]
	assert.Equal(t, "Apple", pos.ConsolidatedName)
	assert.Equal(t, "Technology", pos.Category)
}
