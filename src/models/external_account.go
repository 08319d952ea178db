package models

type ExternalAccount struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	OfficialName string          `json:"official_name,omitempty"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype,omitempty"`
	Mask         string          `json:"mask,omitempty"`
	Balances     AccountBalances `json:"balances"`
}

type AccountBalances struct {
	Current   *float64 `json:"current"`
	Available *float64 `json:"available"`
	Limit     *float64 `json:"limit"`
	Currency  string   `json:"currency,omitempty"`
}
