package cachedata

import "time"

// Default TTLs for different data types.
// These are added to time.Now() when storing to calculate expires_at.
// Operational deployments can override the price/fx/holdings values
// through configuration; these are the fallbacks.
const (
	// Short-lived market data
	TTLCurrentPrice = 10 * time.Minute
	TTLExchangeRate = 10 * time.Minute

	// Brokerage data is expensive to fetch and changes slowly outside
	// trading activity, so it lives just over a day.
	TTLHoldings = 25 * time.Hour
	TTLAccounts = 25 * time.Hour

	// Classifications are near-static labels
	TTLClassification = 30 * 24 * time.Hour

	// User overrides never expire on their own
	TTLOverride = 100 * 365 * 24 * time.Hour
)
