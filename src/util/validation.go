package util

import (
	"bonustrack-server/src/models"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// MaxAmount is the largest value a NUMERIC(14, 2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	last4Re = regexp.MustCompile(`^[0-9]{4}$`)
)

func ValidateEmail(email string) bool {
	return emailRe.MatchString(email)
}

func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLower := regexp.MustCompile("[a-z]").MatchString(password)
	hasUpper := regexp.MustCompile("[A-Z]").MatchString(password)
	hasDigit := regexp.MustCompile("[0-9]").MatchString(password)
	hasSpecial := regexp.MustCompile(`[^A-Za-z0-9]`).MatchString(password)

	return hasLower && hasUpper && hasDigit && hasSpecial
}

// ValidateLast4 accepts an empty mask or exactly four digits.
func ValidateLast4(last4 string) bool {
	return last4 == "" || last4Re.MatchString(last4)
}

// ParseAmount parses a non-negative money amount with at most two decimal places.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, models.ValidationError(field, "is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, models.ValidationError(field, "is not a number")
	}
	if amount.IsNegative() {
		return decimal.Zero, models.ValidationError(field, "must not be negative")
	}
	if amount.GreaterThan(MaxAmount) {
		return decimal.Zero, models.ValidationError(field, "is too large")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, models.ValidationError(field, "has more than two decimal places")
	}
	return amount, nil
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns the UTC day.
func ParseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, models.ValidationError(field, "is required")
	}
	if d, err := time.Parse(DateLayout, raw); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, models.ValidationError(field, "must be YYYY-MM-DD or RFC 3339")
	}
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
