package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCategory = "Other"

const (
	SourceManual = "manual"
	SourceSync   = "sync"
)

type Transaction struct {
	ID            int64           `json:"id"`
	CardID        int64           `json:"card_id"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantName  string          `json:"merchant_name"`
	Category      string          `json:"category"`
	Date          time.Time       `json:"date"`
	Pending       bool            `json:"pending"`
	Description   *string         `json:"description"`
	ExternalToken *string         `json:"-"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewTransaction is a validated row ready for insertion; Amount is already non-negative.
type NewTransaction struct {
	CardID        int64
	Amount        decimal.Decimal
	MerchantName  string
	Category      string
	Date          time.Time
	Pending       bool
	Description   *string
	ExternalToken *string
	Source        string
}

// AggregatorTransaction is one transaction as reported upstream, before normalization.
type AggregatorTransaction struct {
	ExternalAccountID string
	ExternalTxnID     string
	Amount            decimal.Decimal
	MerchantName      string
	Description       string
	Category          string
	Date              time.Time
	Pending           bool
}
