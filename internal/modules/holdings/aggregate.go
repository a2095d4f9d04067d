package holdings

import (
	"context"
	"fmt"
	"math"
)

// AggregateInput carries everything the per-account fold needs beyond the
// valued positions themselves.
type AggregateInput struct {
	Positions       []Position
	OptionPositions []Position

	// Cash balances per currency (brokerage only; nil for manual
	// portfolios, which have no cash concept).
	Cash map[string]float64

	// BrokerReported is the account total the broker computed on its own,
	// used for discrepancy detection. Nil when unavailable.
	BrokerReported *Amount

	ReportingCurrency string

	// DiscrepancyThresholdPct is the divergence (in percent) between the
	// computed and broker-reported totals that triggers a note.
	DiscrepancyThresholdPct float64
}

// AggregateAccount folds valued positions and cash into per-currency
// totals, detects margin usage and broker-value discrepancies, applies the
// equity adjustment to positions, and builds the optional converted
// rollup. The positions slices are mutated in place (equity values).
func AggregateAccount(ctx context.Context, in AggregateInput, fx *Converter) (*CurrencyTotals, []Note) {
	totals := &CurrencyTotals{
		Holdings:      make(map[string]float64),
		Cash:          make(map[string]float64),
		Value:         make(map[string]float64),
		CostBasis:     make(map[string]float64),
		UnrealizedPnL: make(map[string]float64),
	}

	accumulate := func(positions []Position) {
		for _, pos := range positions {
			// Positions lacking a currency or value cannot aggregate;
			// skipped, not zero-filled
			if pos.Currency == "" || pos.MarketValue == nil {
				continue
			}
			totals.Holdings[pos.Currency] = round(totals.Holdings[pos.Currency]+*pos.MarketValue, 2)
			if pos.CostBasis != nil {
				totals.CostBasis[pos.Currency] = round(totals.CostBasis[pos.Currency]+*pos.CostBasis, 2)
			}
		}
	}
	accumulate(in.Positions)
	accumulate(in.OptionPositions)

	for currency, cash := range in.Cash {
		totals.Cash[currency] = round(cash, 2)
	}

	// value[c] = holdings[c] + cash[c] over the union of currencies
	for currency := range totals.Holdings {
		totals.Value[currency] = round(totals.Holdings[currency]+totals.Cash[currency], 2)
	}
	for currency := range totals.Cash {
		if _, seen := totals.Value[currency]; !seen {
			totals.Value[currency] = round(totals.Cash[currency], 2)
		}
	}

	// Aggregate P&L mirrors the per-position suppression rule
	for currency, costBasis := range totals.CostBasis {
		if costBasis > 0 {
			totals.UnrealizedPnL[currency] = round(totals.Holdings[currency]-costBasis, 2)
		}
	}

	var notes []Note
	notes = append(notes, marginNotes(totals)...)

	applyEquityAdjustment(totals, in.Positions)
	applyEquityAdjustment(totals, in.OptionPositions)

	if note := discrepancyNote(ctx, totals, in, fx); note != nil {
		notes = append(notes, *note)
	}

	if in.ReportingCurrency != "" {
		totals.Converted = convertTotals(ctx, totals, in.ReportingCurrency, fx)
	}

	return totals, notes
}

// marginNotes emits one note per currency with negative cash.
func marginNotes(totals *CurrencyTotals) []Note {
	var notes []Note
	for currency, cash := range totals.Cash {
		if cash < 0 {
			amount := cash
			notes = append(notes, Note{
				Type:     "margin",
				Currency: currency,
				Amount:   &amount,
				Message:  fmt.Sprintf("negative cash balance of %.2f %s indicates margin usage", cash, currency),
			})
		}
	}
	return notes
}

// applyEquityAdjustment scales each position's market value by the
// account's equity ratio for its currency. With margin debt the true
// equity in a position is below its nominal market value; the ratio is
// 1.0 when there is no margin.
func applyEquityAdjustment(totals *CurrencyTotals, positions []Position) {
	for i := range positions {
		pos := &positions[i]
		if pos.MarketValue == nil || pos.Currency == "" {
			continue
		}
		holdings := totals.Holdings[pos.Currency]
		if holdings == 0 {
			continue
		}
		ratio := 1.0
		if totals.Cash[pos.Currency] < 0 {
			ratio = totals.Value[pos.Currency] / holdings
		}
		equity := round(*pos.MarketValue*ratio, 2)
		pos.EquityValue = &equity
	}
}

// discrepancyNote compares the computed account value against the
// broker-reported total in a common currency. Divergence can be
// legitimate (live-price substitution, unhandled instrument types,
// partial sync) but the operator should hear about it.
func discrepancyNote(ctx context.Context, totals *CurrencyTotals, in AggregateInput, fx *Converter) *Note {
	if in.BrokerReported == nil || in.BrokerReported.Value == 0 {
		return nil
	}

	common := in.ReportingCurrency
	if common == "" {
		common = in.BrokerReported.Currency
	}

	computed, ok := sumInCurrency(ctx, totals.Value, common, fx)
	if !ok {
		// Without every rate the comparison would be misleading
		return nil
	}

	reported := in.BrokerReported.Value
	if in.BrokerReported.Currency != common {
		rate := fx.Rate(ctx, in.BrokerReported.Currency, common)
		if rate == nil {
			return nil
		}
		reported = round(reported**rate, 2)
	}

	deltaPct := round(math.Abs(computed-reported)/math.Abs(reported)*100, 2)
	if deltaPct <= in.DiscrepancyThresholdPct {
		return nil
	}

	return &Note{
		Type:     "discrepancy",
		Currency: common,
		Computed: &computed,
		Reported: &reported,
		DeltaPct: &deltaPct,
		Message: fmt.Sprintf("computed value %.2f %s differs from broker-reported %.2f %s by %.2f%%",
			computed, common, reported, common, deltaPct),
	}
}

// convertTotals flattens every currency bucket into the reporting
// currency. If any required rate is unavailable the rollup is omitted
// entirely; a partial sum would misstate the total.
func convertTotals(ctx context.Context, totals *CurrencyTotals, reportingCurrency string, fx *Converter) *ConvertedTotals {
	holdings, ok := sumInCurrency(ctx, totals.Holdings, reportingCurrency, fx)
	if !ok {
		return nil
	}
	cash, ok := sumInCurrency(ctx, totals.Cash, reportingCurrency, fx)
	if !ok {
		return nil
	}
	value, ok := sumInCurrency(ctx, totals.Value, reportingCurrency, fx)
	if !ok {
		return nil
	}
	costBasis, ok := sumInCurrency(ctx, totals.CostBasis, reportingCurrency, fx)
	if !ok {
		return nil
	}
	pnl, ok := sumInCurrency(ctx, totals.UnrealizedPnL, reportingCurrency, fx)
	if !ok {
		return nil
	}

	return &ConvertedTotals{
		Currency:      reportingCurrency,
		Holdings:      holdings,
		Cash:          cash,
		Value:         value,
		CostBasis:     costBasis,
		UnrealizedPnL: pnl,
	}
}

// sumInCurrency converts each currency bucket at the request-scoped rate
// and sums. Reports false when any rate cannot be resolved.
func sumInCurrency(ctx context.Context, buckets map[string]float64, target string, fx *Converter) (float64, bool) {
	var sum float64
	for currency, amount := range buckets {
		rate := fx.Rate(ctx, currency, target)
		if rate == nil {
			return 0, false
		}
		sum += amount * *rate
	}
	return round(sum, 2), true
}

// SumTotals folds per-account totals into a grand total across accounts.
// Aggregate P&L follows the same positive-cost-basis suppression rule.
func SumTotals(accounts []Account) *CurrencyTotals {
	grand := &CurrencyTotals{
		Holdings:      make(map[string]float64),
		Cash:          make(map[string]float64),
		Value:         make(map[string]float64),
		CostBasis:     make(map[string]float64),
		UnrealizedPnL: make(map[string]float64),
	}

	for _, account := range accounts {
		// Failed accounts carry no totals and are excluded
		if account.Error != "" || account.Totals == nil {
			continue
		}
		for c, v := range account.Totals.Holdings {
			grand.Holdings[c] = round(grand.Holdings[c]+v, 2)
		}
		for c, v := range account.Totals.Cash {
			grand.Cash[c] = round(grand.Cash[c]+v, 2)
		}
		for c, v := range account.Totals.Value {
			grand.Value[c] = round(grand.Value[c]+v, 2)
		}
		for c, v := range account.Totals.CostBasis {
			grand.CostBasis[c] = round(grand.CostBasis[c]+v, 2)
		}
	}

	for currency, costBasis := range grand.CostBasis {
		if costBasis > 0 {
			grand.UnrealizedPnL[currency] = round(grand.Holdings[currency]-costBasis, 2)
		}
	}

	return grand
}
