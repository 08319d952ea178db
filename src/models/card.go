package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBonusUnit    = "points"
	DefaultDeadlineDays = 90
	AtRiskDaysThreshold = 30
	progressCompletePct = 100.0
)

type Card struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	ConnectionID      *int64          `json:"connection_id"`
	ExternalAccountID *string         `json:"external_account_id"`
	Name              string          `json:"name"`
	Issuer            string          `json:"issuer"`
	Last4             string          `json:"last4"`
	BonusAmount       int64           `json:"bonus_amount"`
	BonusUnit         string          `json:"bonus_unit"`
	SpendingRequired  decimal.Decimal `json:"spending_required"`
	AggregateSpend    decimal.Decimal `json:"aggregate_spend"`
	Deadline          time.Time       `json:"deadline"`
	BonusEarned       bool            `json:"bonus_earned"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type CreateCardParams struct {
	UserID            int64
	ConnectionID      *int64
	ExternalAccountID *string
	Name              string
	Issuer            string
	Last4             string
	BonusAmount       int64
	BonusUnit         string
	SpendingRequired  decimal.Decimal
	Deadline          time.Time
}

// UpdateCardParams replaces the user-editable fields of a card. Spend and
// linkage are owned by the ledger and the linker.
type UpdateCardParams struct {
	Name             string
	Issuer           string
	Last4            string
	BonusAmount      int64
	BonusUnit        string
	SpendingRequired decimal.Decimal
	Deadline         time.Time
	BonusEarned      bool
}

// IsLinked reports whether the card can be synchronized.
func (c *Card) IsLinked() bool {
	return c.ExternalAccountID != nil && *c.ExternalAccountID != "" && c.ConnectionID != nil
}

// ProgressPercent is 100 * spend / requirement. A zero requirement yields
// +Inf (or NaN when nothing was spent); callers clamp.
func (c *Card) ProgressPercent() float64 {
	if c.SpendingRequired.IsZero() {
		if c.AggregateSpend.IsZero() {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return c.AggregateSpend.Mul(decimal.NewFromInt(100)).Div(c.SpendingRequired).InexactFloat64()
}

// DaysRemaining rounds up to whole days and goes negative once the deadline passed.
func (c *Card) DaysRemaining(now time.Time) int {
	hours := c.Deadline.Sub(now).Hours()
	return int(math.Ceil(hours / 24))
}

func (c *Card) AtRisk(now time.Time) bool {
	return c.DaysRemaining(now) < AtRiskDaysThreshold && c.ProgressPercent() < progressCompletePct
}

// CardProgress is a card with its read-time derived values.
type CardProgress struct {
	Card
	ProgressPercent float64 `json:"progress_percent"`
	DaysRemaining   int     `json:"days_remaining"`
	AtRisk          bool    `json:"at_risk"`
}

func NewCardProgress(c Card, now time.Time) CardProgress {
	return CardProgress{
		Card:            c,
		ProgressPercent: ClampPercent(c.ProgressPercent()),
		DaysRemaining:   c.DaysRemaining(now),
		AtRisk:          c.AtRisk(now),
	}
}

// ClampPercent maps the non-finite ratios of a zero requirement onto 0 or 100.
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case math.IsInf(p, 1):
		return progressCompletePct
	}
	return p
}
