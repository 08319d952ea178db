package plaid

import (
	"bonustrack-server/src/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	err := classify("TransactionsGet", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "timed out")

	err = classify("AccountsGet", errors.New("connection refused"))
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToAggregatorTransaction(t *testing.T) {
	txn := plaid.Transaction{}
	txn.SetAccountId("acc-1")
	txn.SetTransactionId("tx-1")
	txn.SetAmount(12.345)
	txn.SetName("UBER 063015 SF**POOL**")
	txn.SetMerchantName("Uber")
	txn.SetDate("2026-02-03")
	txn.SetPending(true)

	got, err := toAggregatorTransaction(txn)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ExternalAccountID)
	assert.Equal(t, "tx-1", got.ExternalTxnID)
	assert.Equal(t, "12.35", got.Amount.StringFixed(2))
	assert.Equal(t, "Uber", got.MerchantName)
	assert.Equal(t, "UBER 063015 SF**POOL**", got.Description)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), got.Date)
	assert.True(t, got.Pending)

	txn.SetDate("02/03/2026")
	_, err = toAggregatorTransaction(txn)
	assert.Error(t, err)
}

func TestToExternalAccount(t *testing.T) {
	current := 1234.56
	acc := plaid.AccountBase{}
	acc.SetAccountId("acc-9")
	acc.SetName("Plaid Credit Card")
	acc.SetMask("3333")
	acc.SetType(plaid.ACCOUNTTYPE_CREDIT)
	acc.SetBalances(plaid.AccountBalance{Current: *plaid.NewNullableFloat64(&current)})

	got := toExternalAccount(acc)
	assert.Equal(t, "acc-9", got.ID)
	assert.Equal(t, "Plaid Credit Card", got.Name)
	assert.Equal(t, "3333", got.Mask)
	assert.Equal(t, "credit", got.Type)
	require.NotNil(t, got.Balances.Current)
	assert.Equal(t, current, *got.Balances.Current)
	assert.Nil(t, got.Balances.Limit)
}

func TestNewPlaidClientRejectsUnknownEnv(t *testing.T) {
	_, err := NewPlaidClient("id", "secret", "staging")
	assert.Error(t, err)

	client, err := NewPlaidClient("id", "secret", "sandbox")
	require.NoError(t, err)
	assert.NotNil(t, client.PlaidApi)
}

func newTestAggregator(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Aggregator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	configuration := plaid.NewConfiguration()
	configuration.Servers = plaid.ServerConfigurations{{URL: srv.URL}}
	return NewAggregator(plaid.NewAPIClient(configuration), "BonusTrack", "", timeout)
}

func TestGetTransactionsTimesOutPerPage(t *testing.T) {
	const total = 3
	var pageDelay atomic.Int64
	pageDelay.Store(int64(60 * time.Millisecond))
	var pages atomic.Int32
	agg := newTestAggregator(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Options struct {
				Offset int `json:"offset"`
			} `json:"options"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		pages.Add(1)
		time.Sleep(time.Duration(pageDelay.Load()))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accounts": []any{},
			"transactions": []map[string]any{{
				"account_id":     "acc-1",
				"transaction_id": fmt.Sprintf("tx-%d", req.Options.Offset),
				"amount":         10.5,
				"name":           "COFFEE",
				"date":           "2026-02-03",
				"pending":        false,
			}},
			"total_transactions": total,
			"item":               map[string]any{"item_id": "item-1"},
			"request_id":         "req-1",
		})
	}, 100*time.Millisecond)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := agg.GetTransactions(context.Background(), "access-1", start, start.AddDate(0, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, int32(total), pages.Load())
	require.Len(t, got, total)
	assert.Equal(t, "tx-0", got[0].ExternalTxnID)
	assert.Equal(t, "tx-2", got[2].ExternalTxnID)

	pageDelay.Store(int64(300 * time.Millisecond))
	_, err = agg.GetTransactions(context.Background(), "access-1", start, start.AddDate(0, 3, 0))
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}
