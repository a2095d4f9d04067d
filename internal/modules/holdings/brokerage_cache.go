package holdings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/asturkmani/superfinance-mcp/internal/cachedata"
	"github.com/asturkmani/superfinance-mcp/internal/clients/snaptrade"
	"github.com/rs/zerolog"
)

// CachedBrokerage wraps a brokerage source with the shared cache.
// Brokerage data changes slowly and the upstream is rate-limited, so
// reads are served from cache while fresh and fall back to stale data
// when the upstream fails.
type CachedBrokerage struct {
	inner       BrokerageSource
	repo        *cachedata.Repository
	holdingsTTL time.Duration
	accountsTTL time.Duration
	log         zerolog.Logger
}

// NewCachedBrokerage wraps inner with cache-first reads.
func NewCachedBrokerage(inner BrokerageSource, repo *cachedata.Repository, accountsTTL, holdingsTTL time.Duration, log zerolog.Logger) *CachedBrokerage {
	return &CachedBrokerage{
		inner:       inner,
		repo:        repo,
		holdingsTTL: holdingsTTL,
		accountsTTL: accountsTTL,
		log:         log.With().Str("component", "brokerage_cache").Logger(),
	}
}

// Configured reports whether the underlying provider has credentials.
func (c *CachedBrokerage) Configured() bool {
	return c.inner != nil && c.inner.Configured()
}

// ListAccounts returns the account list, cache-first.
func (c *CachedBrokerage) ListAccounts(ctx context.Context, userID, userSecret string) ([]snaptrade.Account, error) {
	if cached, err := c.repo.GetIfFresh("accounts", userID); err == nil && cached != nil {
		var accounts []snaptrade.Account
		if err := json.Unmarshal(cached, &accounts); err == nil {
			return accounts, nil
		}
	}
	return c.RefreshAccounts(ctx, userID, userSecret)
}

// RefreshAccounts fetches the account list upstream, bypassing the
// fresh-cache check. Stale data still serves as a fallback on failure.
func (c *CachedBrokerage) RefreshAccounts(ctx context.Context, userID, userSecret string) ([]snaptrade.Account, error) {
	accounts, err := c.inner.ListAccounts(ctx, userID, userSecret)
	if err != nil {
		if stale, staleErr := c.repo.Get("accounts", userID); staleErr == nil && stale != nil {
			var cached []snaptrade.Account
			if jsonErr := json.Unmarshal(stale, &cached); jsonErr == nil {
				c.log.Warn().Err(err).Str("user_id", userID).Msg("Upstream failed, serving stale account list")
				return cached, nil
			}
		}
		return nil, err
	}

	if err := c.repo.Store("accounts", userID, accounts, c.accountsTTL); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache account list")
	}
	return accounts, nil
}

// GetAccountHoldings returns one account's holdings, cache-first.
func (c *CachedBrokerage) GetAccountHoldings(ctx context.Context, accountID, userID, userSecret string) (*snaptrade.Holdings, error) {
	if cached, err := c.repo.GetIfFresh("holdings", accountID); err == nil && cached != nil {
		var holdings snaptrade.Holdings
		if err := json.Unmarshal(cached, &holdings); err == nil {
			return &holdings, nil
		}
	}
	return c.RefreshAccountHoldings(ctx, accountID, userID, userSecret)
}

// RefreshAccountHoldings fetches one account's holdings upstream,
// bypassing the fresh-cache check.
func (c *CachedBrokerage) RefreshAccountHoldings(ctx context.Context, accountID, userID, userSecret string) (*snaptrade.Holdings, error) {
	holdings, err := c.inner.GetAccountHoldings(ctx, accountID, userID, userSecret)
	if err != nil {
		if stale, staleErr := c.repo.Get("holdings", accountID); staleErr == nil && stale != nil {
			var cached snaptrade.Holdings
			if jsonErr := json.Unmarshal(stale, &cached); jsonErr == nil {
				c.log.Warn().Err(err).Str("account_id", accountID).Msg("Upstream failed, serving stale holdings")
				return &cached, nil
			}
		}
		return nil, err
	}

	if err := c.repo.Store("holdings", accountID, holdings, c.holdingsTTL); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cache holdings")
	}
	return holdings, nil
}
