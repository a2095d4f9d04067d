package marketdata

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is used to annualize daily volatility.
const tradingDaysPerYear = 252

// Indicators summarizes technical and statistical measures for a symbol.
type Indicators struct {
	Symbol        string   `json:"symbol"`
	Range         string   `json:"range"`
	Samples       int      `json:"samples"`
	LastClose     float64  `json:"last_close"`
	SMA20         *float64 `json:"sma_20"`
	SMA50         *float64 `json:"sma_50"`
	EMA20         *float64 `json:"ema_20"`
	RSI14         *float64 `json:"rsi_14"`
	MeanDailyRet  *float64 `json:"mean_daily_return"`
	DailyVol      *float64 `json:"daily_volatility"`
	AnnualizedVol *float64 `json:"annualized_volatility"`
}

// GetIndicators computes moving averages, RSI and return statistics over
// daily closes for the requested range.
func (s *Service) GetIndicators(ctx context.Context, symbol, rng string) (*Indicators, error) {
	if rng == "" {
		rng = "6mo"
	}

	candles, err := s.GetHistory(ctx, symbol, rng, "1d")
	if err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close != nil {
			closes = append(closes, *c.Close)
		}
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("not enough price history for %s", symbol)
	}

	result := &Indicators{
		Symbol:    symbol,
		Range:     rng,
		Samples:   len(closes),
		LastClose: closes[len(closes)-1],
		SMA20:     lastValue(talib.Sma(closes, 20), 20, len(closes)),
		SMA50:     lastValue(talib.Sma(closes, 50), 50, len(closes)),
		EMA20:     lastValue(talib.Ema(closes, 20), 20, len(closes)),
		RSI14:     lastValue(talib.Rsi(closes, 14), 15, len(closes)),
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}

	if len(returns) >= 2 {
		mean := stat.Mean(returns, nil)
		std := stat.StdDev(returns, nil)
		annualized := std * math.Sqrt(tradingDaysPerYear)

		result.MeanDailyRet = &mean
		result.DailyVol = &std
		result.AnnualizedVol = &annualized
	}

	return result, nil
}

// lastValue returns the final element of a talib output series, or nil
// when there were fewer samples than the indicator period needs.
func lastValue(series []float64, minSamples, samples int) *float64 {
	if samples < minSamples || len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
