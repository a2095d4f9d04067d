// Package holdings implements the multi-currency consolidation engine:
// it merges brokerage and manual positions into valued positions,
// per-currency account totals and a grand total, with optional conversion
// to a single reporting currency and margin/discrepancy detection.
package holdings

// Position is a valued position, recomputed per request.
// The market_value / cost_basis / unrealized_pnl triple is either fully
// derived or the missing fields stay null; partial derivation never occurs.
type Position struct {
	Symbol           string           `json:"symbol,omitempty"`
	ConsolidatedName string           `json:"consolidated_name,omitempty"`
	Category         string           `json:"category,omitempty"`
	Units            float64          `json:"units"`
	Currency         string           `json:"currency"`
	Price            *float64         `json:"price"`
	PriceSource      string           `json:"price_source"` // cache | live | broker | manual | none
	MarketValue      *float64         `json:"market_value"`
	AverageCost      *float64         `json:"average_cost"`
	CostBasis        *float64         `json:"cost_basis"`
	UnrealizedPnL    *float64         `json:"unrealized_pnl"`
	UnrealizedPnLPct *float64         `json:"unrealized_pnl_pct"`
	EquityValue      *float64         `json:"equity_value,omitempty"`
	Converted        *ConvertedValues `json:"converted,omitempty"`
}

// ConvertedValues re-expresses a position's value fields in the reporting
// currency, tagged with the rate that was used.
type ConvertedValues struct {
	Currency      string   `json:"currency"`
	FxRate        float64  `json:"fx_rate"`
	MarketValue   *float64 `json:"market_value,omitempty"`
	CostBasis     *float64 `json:"cost_basis,omitempty"`
	UnrealizedPnL *float64 `json:"unrealized_pnl,omitempty"`
}

// CurrencyTotals is the per-currency rollup shape shared by accounts and
// the grand total. Every map value is rounded to 2 decimals and
// value[c] = holdings[c] + cash[c] for each currency present in either.
type CurrencyTotals struct {
	Holdings      map[string]float64 `json:"holdings"`
	Cash          map[string]float64 `json:"cash"`
	Value         map[string]float64 `json:"value"`
	CostBasis     map[string]float64 `json:"cost_basis"`
	UnrealizedPnL map[string]float64 `json:"unrealized_pnl"`
	Converted     *ConvertedTotals   `json:"converted,omitempty"`
}

// ConvertedTotals flattens every currency bucket into one reporting currency.
type ConvertedTotals struct {
	Currency      string  `json:"currency"`
	Holdings      float64 `json:"holdings"`
	Cash          float64 `json:"cash"`
	Value         float64 `json:"value"`
	CostBasis     float64 `json:"cost_basis"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Note flags a condition the caller should know about but which does not
// fail the response.
type Note struct {
	Type     string   `json:"type"` // margin | discrepancy
	Message  string   `json:"message"`
	Currency string   `json:"currency,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Computed *float64 `json:"computed_value,omitempty"`
	Reported *float64 `json:"reported_value,omitempty"`
	DeltaPct *float64 `json:"delta_pct,omitempty"`
}

// Account is one consolidated source: a brokerage account or a manual
// portfolio. A failed upstream fetch leaves Error set and everything
// else empty; such accounts are excluded from grand totals.
type Account struct {
	AccountID       string          `json:"account_id,omitempty"`
	PortfolioID     string          `json:"portfolio_id,omitempty"`
	Name            string          `json:"name"`
	Source          string          `json:"source"` // brokerage | manual
	Positions       []Position      `json:"positions,omitempty"`
	OptionPositions []Position      `json:"option_positions,omitempty"`
	Totals          *CurrencyTotals `json:"totals,omitempty"`
	Notes           []Note          `json:"notes,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// ConsolidatedHoldings is the full consolidation response.
type ConsolidatedHoldings struct {
	Totals            *CurrencyTotals `json:"totals"`
	Accounts          []Account       `json:"accounts"`
	ReportingCurrency string          `json:"reporting_currency,omitempty"`
	AsOf              string          `json:"as_of"`
}

// ManualPortfolio is the input shape a manual portfolio source provides.
type ManualPortfolio struct {
	ID        string
	Name      string
	Positions []ManualPosition
}

// ManualPosition is one user-entered position. AverageCost and ManualPrice
// are nil when the user never supplied them.
type ManualPosition struct {
	Symbol      string
	Name        string
	Units       float64
	Currency    string
	AverageCost *float64
	ManualPrice *float64
}

// Amount pairs a value with its currency.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}
