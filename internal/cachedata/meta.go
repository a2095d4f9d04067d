package cachedata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TrackSymbol records a symbol as actively used so background refresh
// jobs know which prices to keep warm.
func (r *Repository) TrackSymbol(symbol string) error {
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO tracked_symbols (symbol, last_seen) VALUES (?, ?)",
		symbol, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to track symbol %s: %w", symbol, err)
	}
	return nil
}

// TrackedSymbols returns every symbol seen in price requests or holdings.
func (r *Repository) TrackedSymbols() ([]string, error) {
	rows, err := r.db.Query("SELECT symbol FROM tracked_symbols ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan tracked symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// UntrackSymbol removes a symbol from the refresh set.
func (r *Repository) UntrackSymbol(symbol string) error {
	_, err := r.db.Exec("DELETE FROM tracked_symbols WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to untrack symbol %s: %w", symbol, err)
	}
	return nil
}

// SetLastRefresh records when a refresh kind (prices, fx, holdings) last ran.
func (r *Repository) SetLastRefresh(kind string) error {
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO refresh_meta (kind, refreshed_at) VALUES (?, ?)",
		kind, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record last refresh for %s: %w", kind, err)
	}
	return nil
}

// LastRefresh returns when a refresh kind last ran, or zero time if never.
func (r *Repository) LastRefresh(kind string) (time.Time, error) {
	var ts int64
	err := r.db.QueryRow("SELECT refreshed_at FROM refresh_meta WHERE kind = ?", kind).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last refresh for %s: %w", kind, err)
	}
	return time.Unix(ts, 0), nil
}

// TableStatus describes one cache table for the status endpoint.
type TableStatus struct {
	Entries int64 `json:"entries"`
}

// Status summarizes cache contents and refresh bookkeeping.
type Status struct {
	Tables         map[string]TableStatus `json:"tables"`
	TrackedSymbols []string               `json:"tracked_symbols"`
	LastRefresh    map[string]string      `json:"last_refresh"`
}

// GetStatus builds a cache status summary for the admin endpoint.
func (r *Repository) GetStatus() (*Status, error) {
	status := &Status{
		Tables:      make(map[string]TableStatus, len(AllTables)),
		LastRefresh: make(map[string]string),
	}

	for _, table := range AllTables {
		count, err := r.Count(table)
		if err != nil {
			return nil, err
		}
		status.Tables[table] = TableStatus{Entries: count}
	}

	symbols, err := r.TrackedSymbols()
	if err != nil {
		return nil, err
	}
	status.TrackedSymbols = symbols

	for _, kind := range []string{"prices", "fx", "holdings"} {
		ts, err := r.LastRefresh(kind)
		if err != nil {
			return nil, err
		}
		if !ts.IsZero() {
			status.LastRefresh[kind] = ts.UTC().Format(time.RFC3339)
		}
	}

	return status, nil
}
