package holdings

import (
	"context"
	"math"
)

// Option contract multipliers.
const (
	standardOptionMultiplier = 100
	miniOptionMultiplier     = 10
)

// RawPosition is a normalized position before valuation, as produced by
// the source adapters.
type RawPosition struct {
	Symbol      string
	Name        string
	Units       float64
	Currency    string
	AverageCost *float64

	// FallbackPrice is the broker-reported or user-supplied price used
	// when no live quote resolves. FallbackSource names its provenance
	// (broker or manual).
	FallbackPrice  *float64
	FallbackSource string

	// Multiplier scales units into notional (1 for stocks, 100 or 10 for
	// option contracts). Zero is treated as 1.
	Multiplier float64

	// IsOption relaxes the P&L suppression rule: option cost bases may be
	// negative (short premium), so P&L is computed whenever the cost basis
	// is nonzero and the percentage uses the absolute cost basis.
	IsOption bool

	// DefaultCostBasisZero makes a missing average cost produce a
	// cost basis of 0 instead of null (manual positions).
	DefaultCostBasisZero bool
}

// Quote is a resolved live price for a symbol.
type Quote struct {
	Price  *float64
	Source string // cache | live
}

// ValuePosition derives market value, cost basis and P&L for one raw
// position, attaching a converted sub-record when a reporting currency is
// requested and its rate resolves. A nil quote or a quote without a price
// falls back to the raw position's own price; with neither, the value
// fields stay null.
func ValuePosition(ctx context.Context, raw RawPosition, quote *Quote, reportingCurrency string, fx *Converter) Position {
	pos := Position{
		Symbol:      raw.Symbol,
		Units:       raw.Units,
		Currency:    raw.Currency,
		AverageCost: raw.AverageCost,
		PriceSource: "none",
	}

	multiplier := raw.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	// Resolve price: live quote first, source-reported price second
	if quote != nil && quote.Price != nil {
		pos.Price = quote.Price
		pos.PriceSource = quote.Source
	} else if raw.FallbackPrice != nil {
		pos.Price = raw.FallbackPrice
		pos.PriceSource = raw.FallbackSource
	}

	// market_value needs both operands; absence yields null, never zero
	if pos.Price != nil {
		mv := round(raw.Units**pos.Price*multiplier, 2)
		pos.MarketValue = &mv
	}

	// cost_basis under the same null-propagation rule
	if raw.AverageCost != nil {
		cb := round(raw.Units**raw.AverageCost*multiplier, 2)
		pos.CostBasis = &cb
	} else if raw.DefaultCostBasisZero {
		zero := 0.0
		pos.CostBasis = &zero
	}

	// P&L only when market value is known and the cost basis qualifies:
	// positive for stocks, nonzero for options
	if pos.MarketValue != nil && pos.CostBasis != nil && pnlBasisValid(*pos.CostBasis, raw.IsOption) {
		pnl := round(*pos.MarketValue-*pos.CostBasis, 2)
		pnlPct := round(pnl/math.Abs(*pos.CostBasis)*100, 2)
		pos.UnrealizedPnL = &pnl
		pos.UnrealizedPnLPct = &pnlPct
	}

	attachConverted(ctx, &pos, reportingCurrency, fx)

	return pos
}

// attachConverted adds the reporting-currency sub-record. A missing rate
// silently omits it; that is a degraded field, not an error.
func attachConverted(ctx context.Context, pos *Position, reportingCurrency string, fx *Converter) {
	if reportingCurrency == "" || reportingCurrency == pos.Currency || pos.MarketValue == nil || fx == nil {
		return
	}

	rate := fx.Rate(ctx, pos.Currency, reportingCurrency)
	if rate == nil {
		return
	}

	converted := &ConvertedValues{
		Currency: reportingCurrency,
		FxRate:   *rate,
	}

	mv := round(*pos.MarketValue**rate, 2)
	converted.MarketValue = &mv

	if pos.CostBasis != nil {
		cb := round(*pos.CostBasis**rate, 2)
		converted.CostBasis = &cb
	}
	if pos.UnrealizedPnL != nil {
		pnl := round(*pos.UnrealizedPnL**rate, 2)
		converted.UnrealizedPnL = &pnl
	}

	pos.Converted = converted
}

func pnlBasisValid(costBasis float64, isOption bool) bool {
	if isOption {
		return costBasis != 0
	}
	return costBasis > 0
}

// OptionMultiplier returns the contract multiplier for an option position.
func OptionMultiplier(isMini bool) float64 {
	if isMini {
		return miniOptionMultiplier
	}
	return standardOptionMultiplier
}

// round rounds a value to the given number of decimal places.
func round(val float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(val*shift) / shift
}
