// Package snaptrade provides a client for the SnapTrade brokerage
// aggregation API. Requests are signed with the consumer key; responses
// are normalized into flat account/position/balance shapes at this
// boundary.
package snaptrade

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production SnapTrade API host.
const DefaultBaseURL = "https://api.snaptrade.com/api/v1"

// Client talks to the SnapTrade API.
type Client struct {
	baseURL     string
	clientID    string
	consumerKey string
	client      *http.Client
	log         zerolog.Logger

	// now is swappable in tests so signatures are deterministic
	now func() time.Time
}

// NewClient creates a new SnapTrade client.
func NewClient(clientID, consumerKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     DefaultBaseURL,
		clientID:    clientID,
		consumerKey: consumerKey,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log.With().Str("client", "snaptrade").Logger(),
		now:         time.Now,
	}
}

// NewClientWithBaseURL creates a client against a custom host (tests).
func NewClientWithBaseURL(clientID, consumerKey, baseURL string, log zerolog.Logger) *Client {
	c := NewClient(clientID, consumerKey, log)
	c.baseURL = baseURL
	return c
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.consumerKey != ""
}

// ListAccounts returns all brokerage accounts connected for a user.
func (c *Client) ListAccounts(ctx context.Context, userID, userSecret string) ([]Account, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("snaptrade client not configured")
	}

	var raw []rawAccount
	if err := c.get(ctx, "/accounts", userID, userSecret, &raw); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]Account, 0, len(raw))
	for _, a := range raw {
		accounts = append(accounts, transformAccount(a))
	}

	c.log.Debug().Int("count", len(accounts)).Msg("Listed accounts")
	return accounts, nil
}

// GetAccountHoldings returns positions, options and cash for one account.
func (c *Client) GetAccountHoldings(ctx context.Context, accountID, userID, userSecret string) (*Holdings, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("snaptrade client not configured")
	}

	var raw rawHoldings
	path := "/accounts/" + url.PathEscape(accountID) + "/holdings"
	if err := c.get(ctx, path, userID, userSecret, &raw); err != nil {
		return nil, fmt.Errorf("failed to get holdings for account %s: %w", accountID, err)
	}

	holdings := transformHoldings(raw)

	c.log.Debug().
		Str("account_id", accountID).
		Int("positions", len(holdings.Positions)).
		Int("options", len(holdings.OptionPositions)).
		Msg("Fetched holdings")

	return holdings, nil
}

// get performs a signed GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path, userID, userSecret string, out interface{}) error {
	query := url.Values{}
	query.Set("clientId", c.clientID)
	query.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	if userID != "" {
		query.Set("userId", userID)
	}
	if userSecret != "" {
		query.Set("userSecret", userSecret)
	}

	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Signature", c.sign(path, query))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// sign produces the request signature per the vendor scheme: an HMAC-SHA256
// over a JSON object of the request content, path and query, keyed by the
// consumer key and base64 encoded.
func (c *Client) sign(path string, query url.Values) string {
	payload := map[string]interface{}{
		"content": nil,
		"path":    "/api/v1" + path,
		"query":   query.Encode(),
	}
	data, _ := json.Marshal(payload)

	mac := hmac.New(sha256.New, []byte(c.consumerKey))
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func transformAccount(raw rawAccount) Account {
	return Account{
		ID:              raw.ID,
		Name:            raw.Name,
		Number:          raw.Number,
		InstitutionName: raw.InstitutionName,
	}
}

func transformHoldings(raw rawHoldings) *Holdings {
	holdings := &Holdings{
		Account:         transformAccount(raw.Account),
		Positions:       make([]Position, 0, len(raw.Positions)),
		OptionPositions: make([]OptionPosition, 0, len(raw.OptionPositions)),
		Balances:        make([]Balance, 0, len(raw.Balances)),
	}

	for _, p := range raw.Positions {
		holdings.Positions = append(holdings.Positions, Position{
			Symbol:               p.Symbol.Symbol.Symbol,
			Description:          p.Symbol.Symbol.Description,
			Units:                p.Units,
			Price:                p.Price,
			AveragePurchasePrice: p.AveragePurchasePrice,
			Currency:             p.Symbol.Symbol.Currency.Code,
		})
	}

	for _, o := range raw.OptionPositions {
		currency := o.Currency.Code
		if currency == "" {
			currency = o.Symbol.OptionSymbol.UnderlyingSymbol.Currency.Code
		}
		holdings.OptionPositions = append(holdings.OptionPositions, OptionPosition{
			Ticker:               o.Symbol.OptionSymbol.Ticker,
			UnderlyingSymbol:     o.Symbol.OptionSymbol.UnderlyingSymbol.Symbol,
			Description:          o.Symbol.OptionSymbol.UnderlyingSymbol.Description,
			Units:                o.Units,
			Price:                o.Price,
			AveragePurchasePrice: o.AveragePurchasePrice,
			Currency:             currency,
			IsMini:               o.Symbol.OptionSymbol.IsMiniOption,
		})
	}

	for _, b := range raw.Balances {
		holdings.Balances = append(holdings.Balances, Balance{
			Currency: b.Currency.Code,
			Cash:     b.Cash,
		})
	}

	// Broker-reported total, preferred from the explicit field with the
	// account balance as fallback
	if raw.TotalValue != nil {
		holdings.TotalValue = &Amount{Value: raw.TotalValue.Value, Currency: raw.TotalValue.Currency}
	} else if raw.Account.Balance.Total != nil {
		holdings.TotalValue = &Amount{
			Value:    raw.Account.Balance.Total.Amount,
			Currency: raw.Account.Balance.Total.Currency,
		}
	}

	return holdings
}
