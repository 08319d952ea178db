package services

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/util"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	tokenPrefixExternalID  = "txn:"
	tokenPrefixContentHash = "hash:"
)

// IdentityToken names the real-world event behind an upstream transaction.
// The aggregator id wins; without one the token is a hash of account, date,
// amount, description and merchant.
func IdentityToken(t models.AggregatorTransaction) string {
	if id := strings.TrimSpace(t.ExternalTxnID); id != "" {
		return tokenPrefixExternalID + id
	}

	var b strings.Builder
	b.WriteString(t.ExternalAccountID)
	b.WriteByte('|')
	b.WriteString(t.Date.Format(util.DateLayout))
	b.WriteByte('|')
	b.WriteString(t.Amount.Abs().StringFixed(2))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(t.Description)))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(t.MerchantName)))

	return tokenPrefixContentHash + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}
