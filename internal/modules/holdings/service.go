package holdings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/clients/snaptrade"
	"github.com/asturkmani/superfinance-mcp/internal/clients/yahoo"
	"github.com/rs/zerolog"
)

// BrokerageSource lists accounts and fetches per-account holdings.
type BrokerageSource interface {
	Configured() bool
	ListAccounts(ctx context.Context, userID, userSecret string) ([]snaptrade.Account, error)
	GetAccountHoldings(ctx context.Context, accountID, userID, userSecret string) (*snaptrade.Holdings, error)
}

// PriceSource resolves live quotes for symbols.
type PriceSource interface {
	GetLivePrice(ctx context.Context, symbol string) (*yahoo.Quote, error)
}

// ManualSource loads user-entered portfolios.
type ManualSource interface {
	LoadPortfolios() ([]ManualPortfolio, error)
}

// Labeler attaches classification labels to positions. Optional.
type Labeler interface {
	Label(ctx context.Context, symbol, description string) (name, category string)
}

// Params select what one consolidation pass covers.
type Params struct {
	UserID            string
	UserSecret        string
	ReportingCurrency string
}

// Service is the consolidation engine entry point. All collaborators are
// injected; the service holds no per-request state.
type Service struct {
	broker  BrokerageSource
	manual  ManualSource
	prices  PriceSource
	rates   RateSource
	labeler Labeler

	defaultUserID     string
	defaultUserSecret string

	discrepancyThresholdPct float64
	log                     zerolog.Logger
}

// Config wires the service's collaborators.
type Config struct {
	Broker  BrokerageSource
	Manual  ManualSource
	Prices  PriceSource
	Rates   RateSource
	Labeler Labeler

	DefaultUserID     string
	DefaultUserSecret string

	// DiscrepancyThresholdPct defaults to 2.0 when unset.
	DiscrepancyThresholdPct float64
}

// NewService creates the consolidation service.
func NewService(cfg Config, log zerolog.Logger) *Service {
	threshold := cfg.DiscrepancyThresholdPct
	if threshold <= 0 {
		threshold = 2.0
	}
	return &Service{
		broker:                  cfg.Broker,
		manual:                  cfg.Manual,
		prices:                  cfg.Prices,
		rates:                   cfg.Rates,
		labeler:                 cfg.Labeler,
		defaultUserID:           cfg.DefaultUserID,
		defaultUserSecret:       cfg.DefaultUserSecret,
		discrepancyThresholdPct: threshold,
		log:                     log.With().Str("component", "holdings").Logger(),
	}
}

// Consolidate merges every configured source into one response: valued
// positions, per-account totals with notes, and a grand total. A failing
// account degrades to an error slot; the request fails outright only when
// no source is available at all.
func (s *Service) Consolidate(ctx context.Context, params Params) (*ConsolidatedHoldings, error) {
	userID := params.UserID
	userSecret := params.UserSecret
	if userID == "" && userSecret == "" {
		userID = s.defaultUserID
		userSecret = s.defaultUserSecret
	}
	reporting := strings.ToUpper(strings.TrimSpace(params.ReportingCurrency))

	hasBrokerage := s.broker != nil && s.broker.Configured() && userID != "" && userSecret != ""

	var manualPortfolios []ManualPortfolio
	var manualErr error
	if s.manual != nil {
		manualPortfolios, manualErr = s.manual.LoadPortfolios()
		if manualErr != nil {
			s.log.Error().Err(manualErr).Msg("Failed to load manual portfolios")
		}
	}

	if !hasBrokerage && len(manualPortfolios) == 0 {
		if manualErr != nil {
			return nil, fmt.Errorf("no usable holdings source: %w", manualErr)
		}
		return nil, fmt.Errorf("no holdings sources configured: set brokerage credentials or create a manual portfolio")
	}

	// One FX cache per request, shared across every account in this pass
	fx := NewConverter(s.rates, s.log)

	var accounts []Account

	if hasBrokerage {
		accounts = append(accounts, s.consolidateBrokerage(ctx, userID, userSecret, reporting, fx)...)
	}

	for _, portfolio := range manualPortfolios {
		accounts = append(accounts, s.consolidateManual(ctx, portfolio, reporting, fx))
	}

	grand := SumTotals(accounts)
	if reporting != "" {
		grand.Converted = convertTotals(ctx, grand, reporting, fx)
	}

	return &ConsolidatedHoldings{
		Totals:            grand,
		Accounts:          accounts,
		ReportingCurrency: reporting,
		AsOf:              time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ListBrokerageAccounts exposes the raw account list for the accounts API.
func (s *Service) ListBrokerageAccounts(ctx context.Context, userID, userSecret string) ([]snaptrade.Account, error) {
	if s.broker == nil || !s.broker.Configured() {
		return nil, fmt.Errorf("brokerage provider not configured")
	}
	if userID == "" && userSecret == "" {
		userID = s.defaultUserID
		userSecret = s.defaultUserSecret
	}
	if userID == "" || userSecret == "" {
		return nil, fmt.Errorf("brokerage credentials required")
	}
	return s.broker.ListAccounts(ctx, userID, userSecret)
}

// consolidateBrokerage fetches and values every connected account.
// Errors are downgraded to account-level slots, never raised.
func (s *Service) consolidateBrokerage(ctx context.Context, userID, userSecret, reporting string, fx *Converter) []Account {
	brokerAccounts, err := s.broker.ListAccounts(ctx, userID, userSecret)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list brokerage accounts")
		return []Account{{
			Name:   "brokerage",
			Source: "brokerage",
			Error:  err.Error(),
		}}
	}

	accounts := make([]Account, 0, len(brokerAccounts))
	for _, acc := range brokerAccounts {
		accounts = append(accounts, s.consolidateAccount(ctx, acc, userID, userSecret, reporting, fx))
	}
	return accounts
}

func (s *Service) consolidateAccount(ctx context.Context, acc snaptrade.Account, userID, userSecret, reporting string, fx *Converter) Account {
	account := Account{
		AccountID: acc.ID,
		Name:      acc.Name,
		Source:    "brokerage",
	}

	data, err := s.broker.GetAccountHoldings(ctx, acc.ID, userID, userSecret)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", acc.ID).Msg("Failed to fetch account holdings")
		account.Error = err.Error()
		return account
	}

	if data.Account.Name != "" {
		account.Name = data.Account.Name
	}

	for _, p := range data.Positions {
		raw := RawPosition{
			Symbol:         p.Symbol,
			Name:           p.Description,
			Units:          p.Units,
			Currency:       p.Currency,
			AverageCost:    p.AveragePurchasePrice,
			FallbackPrice:  p.Price,
			FallbackSource: "broker",
		}
		pos := ValuePosition(ctx, raw, s.resolveQuote(ctx, p.Symbol), reporting, fx)
		s.label(ctx, &pos, p.Description)
		account.Positions = append(account.Positions, pos)
	}

	for _, o := range data.OptionPositions {
		raw := RawPosition{
			Symbol:         o.Ticker,
			Name:           o.Description,
			Units:          o.Units,
			Currency:       o.Currency,
			AverageCost:    o.AveragePurchasePrice,
			FallbackPrice:  o.Price,
			FallbackSource: "broker",
			Multiplier:     OptionMultiplier(o.IsMini),
			IsOption:       true,
		}
		// Options are valued off the broker price; option quotes are not
		// resolvable through the stock quote path
		pos := ValuePosition(ctx, raw, nil, reporting, fx)
		s.label(ctx, &pos, o.Description)
		account.OptionPositions = append(account.OptionPositions, pos)
	}

	cash := make(map[string]float64, len(data.Balances))
	for _, b := range data.Balances {
		if b.Currency == "" {
			continue
		}
		cash[b.Currency] += b.Cash
	}

	var reported *Amount
	if data.TotalValue != nil {
		reported = &Amount{Value: data.TotalValue.Value, Currency: data.TotalValue.Currency}
	}

	totals, notes := AggregateAccount(ctx, AggregateInput{
		Positions:               account.Positions,
		OptionPositions:         account.OptionPositions,
		Cash:                    cash,
		BrokerReported:          reported,
		ReportingCurrency:       reporting,
		DiscrepancyThresholdPct: s.discrepancyThresholdPct,
	}, fx)

	account.Totals = totals
	account.Notes = notes
	return account
}

// consolidateManual values one user-entered portfolio. Manual portfolios
// have no cash concept, so their cash bucket stays empty by construction.
func (s *Service) consolidateManual(ctx context.Context, portfolio ManualPortfolio, reporting string, fx *Converter) Account {
	account := Account{
		PortfolioID: portfolio.ID,
		Name:        portfolio.Name,
		Source:      "manual",
	}

	for _, p := range portfolio.Positions {
		raw := RawPosition{
			Symbol:               p.Symbol,
			Name:                 p.Name,
			Units:                p.Units,
			Currency:             p.Currency,
			AverageCost:          p.AverageCost,
			FallbackPrice:        p.ManualPrice,
			FallbackSource:       "manual",
			DefaultCostBasisZero: true,
		}
		pos := ValuePosition(ctx, raw, s.resolveQuote(ctx, p.Symbol), reporting, fx)
		s.label(ctx, &pos, p.Name)
		account.Positions = append(account.Positions, pos)
	}

	totals, notes := AggregateAccount(ctx, AggregateInput{
		Positions:               account.Positions,
		ReportingCurrency:       reporting,
		DiscrepancyThresholdPct: s.discrepancyThresholdPct,
	}, fx)

	account.Totals = totals
	account.Notes = notes
	return account
}

// resolveQuote fetches a live quote, mapping provenance onto the position
// price_source vocabulary. Lookup failures yield nil so valuation falls
// back to the source-reported price.
func (s *Service) resolveQuote(ctx context.Context, symbol string) *Quote {
	if symbol == "" || s.prices == nil {
		return nil
	}

	quote, err := s.prices.GetLivePrice(ctx, symbol)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", symbol).Msg("Live price unavailable")
		return nil
	}
	if quote.Price == nil {
		return nil
	}

	source := "live"
	if quote.Source == "cache" {
		source = "cache"
	}
	return &Quote{Price: quote.Price, Source: source}
}

func (s *Service) label(ctx context.Context, pos *Position, description string) {
	if s.labeler == nil || pos.Symbol == "" {
		return
	}
	pos.ConsolidatedName, pos.Category = s.labeler.Label(ctx, pos.Symbol, description)
}
