package snaptrade

// Account is a normalized brokerage account.
type Account struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number,omitempty"`
	InstitutionName string `json:"institution_name,omitempty"`
}

// Amount pairs a value with its currency.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Position is a normalized stock/ETF position.
// Price and AveragePurchasePrice are nil when the broker does not report them.
type Position struct {
	Symbol               string   `json:"symbol"`
	Description          string   `json:"description,omitempty"`
	Units                float64  `json:"units"`
	Price                *float64 `json:"price"`
	AveragePurchasePrice *float64 `json:"average_purchase_price"`
	Currency             string   `json:"currency"`
}

// OptionPosition is a normalized option position.
// Units are contracts; the multiplier is applied downstream during valuation.
type OptionPosition struct {
	Ticker               string   `json:"ticker"`
	UnderlyingSymbol     string   `json:"underlying_symbol"`
	Description          string   `json:"description,omitempty"`
	Units                float64  `json:"units"`
	Price                *float64 `json:"price"`
	AveragePurchasePrice *float64 `json:"average_purchase_price"`
	Currency             string   `json:"currency"`
	IsMini               bool     `json:"is_mini"`
}

// Balance is a normalized per-currency cash balance.
// Cash may be negative when the account carries margin debt.
type Balance struct {
	Currency string  `json:"currency"`
	Cash     float64 `json:"cash"`
}

// Holdings is everything the broker reports for one account.
type Holdings struct {
	Account         Account          `json:"account"`
	Positions       []Position       `json:"positions"`
	OptionPositions []OptionPosition `json:"option_positions"`
	Balances        []Balance        `json:"balances"`
	TotalValue      *Amount          `json:"total_value,omitempty"`
}

// Vendor payload shapes. SnapTrade nests symbols three levels deep
// (position -> universal symbol -> raw symbol); these structs exist only
// so the transform functions can flatten them once at this boundary.

type rawCurrency struct {
	Code string `json:"code"`
}

type rawSymbolInner struct {
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Currency    rawCurrency `json:"currency"`
}

type rawUniversalSymbol struct {
	Symbol rawSymbolInner `json:"symbol"`
}

type rawPosition struct {
	Symbol               rawUniversalSymbol `json:"symbol"`
	Units                float64            `json:"units"`
	Price                *float64           `json:"price"`
	AveragePurchasePrice *float64           `json:"average_purchase_price"`
}

type rawOptionSymbol struct {
	Ticker           string         `json:"ticker"`
	IsMiniOption     bool           `json:"is_mini_option"`
	UnderlyingSymbol rawSymbolInner `json:"underlying_symbol"`
}

type rawOptionPosition struct {
	Symbol struct {
		OptionSymbol rawOptionSymbol `json:"option_symbol"`
	} `json:"symbol"`
	Units                float64     `json:"units"`
	Price                *float64    `json:"price"`
	AveragePurchasePrice *float64    `json:"average_purchase_price"`
	Currency             rawCurrency `json:"currency"`
}

type rawBalance struct {
	Currency rawCurrency `json:"currency"`
	Cash     float64     `json:"cash"`
}

type rawAccount struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number"`
	InstitutionName string `json:"institution_name"`
	Balance         struct {
		Total *struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		} `json:"total"`
	} `json:"balance"`
}

type rawHoldings struct {
	Account         rawAccount          `json:"account"`
	Positions       []rawPosition       `json:"positions"`
	OptionPositions []rawOptionPosition `json:"option_positions"`
	Balances        []rawBalance        `json:"balances"`
	TotalValue      *struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"total_value"`
}
