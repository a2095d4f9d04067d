package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/rs/zerolog"
)

const refreshTimeout = 60 * time.Second

// RefreshPricesJob re-fetches quotes for every tracked symbol so the
// cache stays warm between user requests.
type RefreshPricesJob struct {
	service *Service
	repo    *cachedata.Repository
	log     zerolog.Logger
}

// NewRefreshPricesJob creates the price refresh job.
func NewRefreshPricesJob(service *Service, repo *cachedata.Repository, log zerolog.Logger) *RefreshPricesJob {
	return &RefreshPricesJob{
		service: service,
		repo:    repo,
		log:     log.With().Str("job", "refresh_prices").Logger(),
	}
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run refreshes every tracked symbol. Individual symbol failures are
// logged and skipped; one bad ticker must not stall the rest.
func (j *RefreshPricesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	symbols, err := j.repo.TrackedSymbols()
	if err != nil {
		return fmt.Errorf("failed to list tracked symbols: %w", err)
	}

	var failed int
	for _, symbol := range symbols {
		if _, err := j.service.RefreshPrice(ctx, symbol); err != nil {
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Price refresh failed")
			failed++
		}
	}

	if err := j.repo.SetLastRefresh("prices"); err != nil {
		j.log.Warn().Err(err).Msg("Failed to record refresh time")
	}

	j.log.Info().
		Int("symbols", len(symbols)).
		Int("failed", failed).
		Msg("Price refresh completed")
	return nil
}

// RefreshFxJob keeps the common currency pairs warm.
type RefreshFxJob struct {
	service *Service
	repo    *cachedata.Repository
	log     zerolog.Logger
}

// NewRefreshFxJob creates the FX refresh job.
func NewRefreshFxJob(service *Service, repo *cachedata.Repository, log zerolog.Logger) *RefreshFxJob {
	return &RefreshFxJob{
		service: service,
		repo:    repo,
		log:     log.With().Str("job", "refresh_fx").Logger(),
	}
}

// Name returns the job name
func (j *RefreshFxJob) Name() string {
	return "refresh_fx"
}

// Run refreshes every common FX pair.
func (j *RefreshFxJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	var failed int
	for _, pair := range CommonFxPairs {
		if _, err := j.service.RefreshFxRate(ctx, pair[0], pair[1]); err != nil {
			j.log.Warn().Err(err).Str("from", pair[0]).Str("to", pair[1]).Msg("FX refresh failed")
			failed++
		}
	}

	if err := j.repo.SetLastRefresh("fx"); err != nil {
		j.log.Warn().Err(err).Msg("Failed to record refresh time")
	}

	j.log.Info().
		Int("pairs", len(CommonFxPairs)).
		Int("failed", failed).
		Msg("FX refresh completed")
	return nil
}
