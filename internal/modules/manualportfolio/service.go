package manualportfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/modules/holdings"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PositionInput carries the user-supplied fields for adding a position.
type PositionInput struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Units       float64  `json:"units"`
	Currency    string   `json:"currency"`
	AverageCost *float64 `json:"average_cost"`
	ManualPrice *float64 `json:"manual_price"`
}

// PositionUpdate carries partial updates; nil fields are left unchanged.
type PositionUpdate struct {
	Symbol      *string  `json:"symbol"`
	Name        *string  `json:"name"`
	Units       *float64 `json:"units"`
	Currency    *string  `json:"currency"`
	AverageCost *float64 `json:"average_cost"`
	ManualPrice *float64 `json:"manual_price"`
}

// Service manages user-entered portfolios and values them on demand. It
// also feeds the consolidation engine through LoadPortfolios.
type Service struct {
	store  *FileStore
	prices holdings.PriceSource
	rates  holdings.RateSource
	log    zerolog.Logger
}

// NewService creates the manual portfolio service. Prices and rates may
// be nil; valuation then relies on manual prices alone.
func NewService(store *FileStore, prices holdings.PriceSource, rates holdings.RateSource, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		prices: prices,
		rates:  rates,
		log:    log.With().Str("component", "manual_portfolio").Logger(),
	}
}

// newID returns a short id in the style used throughout the portfolio
// file, long enough to avoid collisions at this scale.
func newID() string {
	return uuid.NewString()[:8]
}

// CreatePortfolio creates an empty named portfolio.
func (s *Service) CreatePortfolio(name string) (*Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("portfolio name is required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	portfolio := &Portfolio{
		ID:        newID(),
		Name:      name,
		Positions: []Position{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.Update(func(portfolios map[string]*Portfolio) error {
		portfolios[portfolio.ID] = portfolio
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("portfolio_id", portfolio.ID).Str("name", name).Msg("Created manual portfolio")
	return portfolio, nil
}

// DeletePortfolio removes a portfolio and all its positions.
func (s *Service) DeletePortfolio(id string) error {
	return s.store.Update(func(portfolios map[string]*Portfolio) error {
		if _, ok := portfolios[id]; !ok {
			return fmt.Errorf("portfolio %s not found", id)
		}
		delete(portfolios, id)
		return nil
	})
}

// ListPortfolios returns all portfolios sorted by creation time.
func (s *Service) ListPortfolios() ([]*Portfolio, error) {
	portfolios, err := s.store.Read()
	if err != nil {
		return nil, err
	}

	out := make([]*Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetPortfolio returns one portfolio by id.
func (s *Service) GetPortfolio(id string) (*Portfolio, error) {
	portfolios, err := s.store.Read()
	if err != nil {
		return nil, err
	}
	portfolio, ok := portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s not found", id)
	}
	return portfolio, nil
}

// AddPosition appends a position to a portfolio.
func (s *Service) AddPosition(portfolioID string, input PositionInput) (*Position, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input.Symbol))
	name := strings.TrimSpace(input.Name)
	// Private holdings without a ticker are allowed as long as they
	// carry a name; they are valued through manual_price.
	if symbol == "" && name == "" {
		return nil, fmt.Errorf("either symbol or name is required")
	}
	if input.Units <= 0 {
		return nil, fmt.Errorf("units must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency is required")
	}

	position := Position{
		ID:          newID(),
		Symbol:      symbol,
		Name:        name,
		Units:       input.Units,
		Currency:    currency,
		AverageCost: input.AverageCost,
		ManualPrice: input.ManualPrice,
	}

	err := s.store.Update(func(portfolios map[string]*Portfolio) error {
		portfolio, ok := portfolios[portfolioID]
		if !ok {
			return fmt.Errorf("portfolio %s not found", portfolioID)
		}
		portfolio.Positions = append(portfolio.Positions, position)
		portfolio.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// UpdatePosition applies a partial update to one position.
func (s *Service) UpdatePosition(portfolioID, positionID string, update PositionUpdate) (*Position, error) {
	if update.Units != nil && *update.Units <= 0 {
		return nil, fmt.Errorf("units must be positive")
	}

	var updated Position
	err := s.store.Update(func(portfolios map[string]*Portfolio) error {
		portfolio, ok := portfolios[portfolioID]
		if !ok {
			return fmt.Errorf("portfolio %s not found", portfolioID)
		}
		for i := range portfolio.Positions {
			pos := &portfolio.Positions[i]
			if pos.ID != positionID {
				continue
			}
			if update.Symbol != nil {
				pos.Symbol = strings.ToUpper(strings.TrimSpace(*update.Symbol))
			}
			if update.Name != nil {
				pos.Name = strings.TrimSpace(*update.Name)
			}
			if update.Units != nil {
				pos.Units = *update.Units
			}
			if update.Currency != nil {
				pos.Currency = strings.ToUpper(strings.TrimSpace(*update.Currency))
			}
			if update.AverageCost != nil {
				pos.AverageCost = update.AverageCost
			}
			if update.ManualPrice != nil {
				pos.ManualPrice = update.ManualPrice
			}
			if pos.Symbol == "" && pos.Name == "" {
				return fmt.Errorf("either symbol or name is required")
			}
			portfolio.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			updated = *pos
			return nil
		}
		return fmt.Errorf("position %s not found in portfolio %s", positionID, portfolioID)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemovePosition deletes one position from a portfolio.
func (s *Service) RemovePosition(portfolioID, positionID string) error {
	return s.store.Update(func(portfolios map[string]*Portfolio) error {
		portfolio, ok := portfolios[portfolioID]
		if !ok {
			return fmt.Errorf("portfolio %s not found", portfolioID)
		}
		for i := range portfolio.Positions {
			if portfolio.Positions[i].ID != positionID {
				continue
			}
			portfolio.Positions = append(portfolio.Positions[:i], portfolio.Positions[i+1:]...)
			portfolio.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
			return nil
		}
		return fmt.Errorf("position %s not found in portfolio %s", positionID, portfolioID)
	})
}

// LoadPortfolios adapts the stored portfolios into the consolidation
// engine's input shape.
func (s *Service) LoadPortfolios() ([]holdings.ManualPortfolio, error) {
	portfolios, err := s.ListPortfolios()
	if err != nil {
		return nil, err
	}

	out := make([]holdings.ManualPortfolio, 0, len(portfolios))
	for _, p := range portfolios {
		mp := holdings.ManualPortfolio{ID: p.ID, Name: p.Name}
		for _, pos := range p.Positions {
			mp.Positions = append(mp.Positions, holdings.ManualPosition{
				Symbol:      pos.Symbol,
				Name:        pos.Name,
				Units:       pos.Units,
				Currency:    pos.Currency,
				AverageCost: pos.AverageCost,
				ManualPrice: pos.ManualPrice,
			})
		}
		out = append(out, mp)
	}
	return out, nil
}

// ValuePortfolio prices one portfolio through the valuation engine,
// optionally converting into a target currency.
func (s *Service) ValuePortfolio(ctx context.Context, id, targetCurrency string) (*holdings.Account, error) {
	portfolio, err := s.GetPortfolio(id)
	if err != nil {
		return nil, err
	}

	target := strings.ToUpper(strings.TrimSpace(targetCurrency))
	fx := holdings.NewConverter(s.rates, s.log)

	account := holdings.Account{
		PortfolioID: portfolio.ID,
		Name:        portfolio.Name,
		Source:      "manual",
	}

	for _, p := range portfolio.Positions {
		raw := holdings.RawPosition{
			Symbol:               p.Symbol,
			Name:                 p.Name,
			Units:                p.Units,
			Currency:             p.Currency,
			AverageCost:          p.AverageCost,
			FallbackPrice:        p.ManualPrice,
			FallbackSource:       "manual",
			DefaultCostBasisZero: true,
		}
		account.Positions = append(account.Positions, holdings.ValuePosition(ctx, raw, s.liveQuote(ctx, p.Symbol), target, fx))
	}

	totals, notes := holdings.AggregateAccount(ctx, holdings.AggregateInput{
		Positions:         account.Positions,
		ReportingCurrency: target,
	}, fx)
	account.Totals = totals
	account.Notes = notes

	return &account, nil
}

func (s *Service) liveQuote(ctx context.Context, symbol string) *holdings.Quote {
	if s.prices == nil || symbol == "" {
		return nil
	}
	quote, err := s.prices.GetLivePrice(ctx, symbol)
	if err != nil || quote.Price == nil {
		return nil
	}
	source := "live"
	if quote.Source == "cache" {
		source = "cache"
	}
	return &holdings.Quote{Price: quote.Price, Source: source}
}
