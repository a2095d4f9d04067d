package holdings

import (
	"context"
	"fmt"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/rs/zerolog"
)

const refreshTimeout = 120 * time.Second

// RefreshHoldingsJob re-fetches brokerage accounts and their holdings for
// the configured default user. Only registered when default credentials
// are present; per-request credentials cannot be refreshed in the
// background.
type RefreshHoldingsJob struct {
	broker     *CachedBrokerage
	repo       *cachedata.Repository
	userID     string
	userSecret string
	log        zerolog.Logger
}

// NewRefreshHoldingsJob creates the holdings refresh job.
func NewRefreshHoldingsJob(broker *CachedBrokerage, repo *cachedata.Repository, userID, userSecret string, log zerolog.Logger) *RefreshHoldingsJob {
	return &RefreshHoldingsJob{
		broker:     broker,
		repo:       repo,
		userID:     userID,
		userSecret: userSecret,
		log:        log.With().Str("job", "refresh_holdings").Logger(),
	}
}

// Name returns the job name
func (j *RefreshHoldingsJob) Name() string {
	return "refresh_holdings"
}

// Run refreshes the account list and every account's holdings. A single
// failing account is logged and skipped.
func (j *RefreshHoldingsJob) Run() error {
	if !j.broker.Configured() || j.userID == "" || j.userSecret == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	accounts, err := j.broker.RefreshAccounts(ctx, j.userID, j.userSecret)
	if err != nil {
		return fmt.Errorf("failed to refresh account list: %w", err)
	}

	var failed int
	for _, acc := range accounts {
		if _, err := j.broker.RefreshAccountHoldings(ctx, acc.ID, j.userID, j.userSecret); err != nil {
			j.log.Warn().Err(err).Str("account_id", acc.ID).Msg("Holdings refresh failed")
			failed++
		}
	}

	if err := j.repo.SetLastRefresh("holdings"); err != nil {
		j.log.Warn().Err(err).Msg("Failed to record refresh time")
	}

	j.log.Info().
		Int("accounts", len(accounts)).
		Int("failed", failed).
		Msg("Holdings refresh completed")
	return nil
}
