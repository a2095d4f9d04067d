package holdings

import (
	"context"

	"github.com/rs/zerolog"
)

// RateSource resolves one currency pair upstream.
type RateSource interface {
	GetFxRate(ctx context.Context, from, to string) (float64, error)
}

// Converter memoizes FX rates for the duration of one consolidation pass.
// It is constructed fresh per request and must never be shared across
// concurrent requests.
type Converter struct {
	source RateSource
	rates  map[string]float64
	log    zerolog.Logger
}

// NewConverter creates a request-scoped converter.
func NewConverter(source RateSource, log zerolog.Logger) *Converter {
	return &Converter{
		source: source,
		rates:  make(map[string]float64),
		log:    log,
	}
}

// Rate returns the rate converting one unit of from into to, or nil when
// the pair cannot be resolved. Identity pairs short-circuit to 1.0 with no
// lookup. Resolved rates are reused for the rest of the request; failures
// are not cached, so a later occurrence of the same pair retries.
func (c *Converter) Rate(ctx context.Context, from, to string) *float64 {
	if from == to {
		one := 1.0
		return &one
	}

	key := from + ":" + to
	if rate, ok := c.rates[key]; ok {
		return &rate
	}

	if c.source == nil {
		return nil
	}

	rate, err := c.source.GetFxRate(ctx, from, to)
	if err != nil {
		c.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("FX rate unavailable")
		return nil
	}

	c.rates[key] = rate
	return &rate
}

// RatesUsed exposes every rate resolved during this request.
func (c *Converter) RatesUsed() map[string]float64 {
	out := make(map[string]float64, len(c.rates))
	for k, v := range c.rates {
		out[k] = v
	}
	return out
}
