package db

import (
	rootdb "bonustrack-server/src/db"
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore needs a disposable database in TEST_DATABASE_URL.
func newTestStore(t *testing.T) (*Store, *models.User) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := rootdb.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, rootdb.Migrate(ctx, pool))

	s := NewStore(pool)
	user, err := s.CreateUser(ctx, fmt.Sprintf("store-test-%d@example.com", time.Now().UnixNano()), []byte("hash"))
	require.NoError(t, err)
	return s, user
}

func TestPostgresLedgerRoundTrip(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	conn, err := s.CreateConnection(ctx, &models.InstitutionConnection{
		UserID: user.ID, InstitutionID: "ins_1", InstitutionName: "Bank", AccessToken: "tok",
		ItemID: fmt.Sprintf("item-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	acct := fmt.Sprintf("acc-%d", time.Now().UnixNano())
	card, err := s.CreateCard(ctx, models.CreateCardParams{
		UserID: user.ID, ConnectionID: &conn.ID, ExternalAccountID: &acct, Name: "Card",
		BonusUnit: models.DefaultBonusUnit, SpendingRequired: decimal.NewFromInt(4000),
		Deadline: time.Now().AddDate(0, 3, 0),
	})
	require.NoError(t, err)

	_, err = s.CreateCard(ctx, models.CreateCardParams{UserID: user.ID, ExternalAccountID: &acct, Name: "dup", Deadline: time.Now()})
	assert.ErrorIs(t, err, models.ErrConflict)

	token := "txn:1"
	err = s.InCardTx(ctx, user.ID, card.ID, func(tx services.CardTx) error {
		for i := 0; i < 2; i++ {
			_, _, err := tx.InsertTransaction(ctx, models.NewTransaction{
				Amount: decimal.RequireFromString("12.34"), MerchantName: "m", Category: "Other",
				Date: time.Now().UTC(), ExternalToken: &token, Source: models.SourceSync,
			})
			if err != nil {
				return err
			}
		}
		_, err := tx.RecomputeSpend(ctx)
		return err
	})
	require.NoError(t, err)

	got, err := s.GetCard(ctx, user.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.34", got.AggregateSpend.StringFixed(2))

	rollback := errors.New("rollback")
	err = s.InCardTx(ctx, user.ID, card.ID, func(tx services.CardTx) error {
		if _, _, err := tx.InsertTransaction(ctx, models.NewTransaction{
			Amount: decimal.NewFromInt(5), MerchantName: "m", Category: "Other", Date: time.Now().UTC(), Source: models.SourceManual,
		}); err != nil {
			return err
		}
		if _, err := tx.RecomputeSpend(ctx); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	txns, err := s.ListTransactions(ctx, user.ID, card.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	updated, err := s.UpdateCard(ctx, user.ID, card.ID, models.UpdateCardParams{
		Name: "Renamed", BonusUnit: "miles", SpendingRequired: decimal.NewFromInt(3000),
		Deadline: time.Now().AddDate(0, 1, 0), BonusEarned: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.BonusEarned)
	assert.Equal(t, "12.34", updated.AggregateSpend.StringFixed(2))
	_, err = s.UpdateCard(ctx, user.ID+1000000, card.ID, models.UpdateCardParams{Name: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.DeleteCard(ctx, user.ID, card.ID))
	_, err = s.GetTransaction(ctx, user.ID, txns[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresConcurrentUnitsSerialize(t *testing.T) {
	s, user := newTestStore(t)
	ctx := context.Background()

	card, err := s.CreateCard(ctx, models.CreateCardParams{
		UserID: user.ID, Name: "Card", BonusUnit: models.DefaultBonusUnit, Deadline: time.Now(),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InCardTx(ctx, user.ID, card.ID, func(tx services.CardTx) error {
				if _, _, err := tx.InsertTransaction(ctx, models.NewTransaction{
					Amount: decimal.NewFromInt(1), MerchantName: "m", Category: "Other", Date: time.Now().UTC(), Source: models.SourceManual,
				}); err != nil {
					return err
				}
				_, err := tx.RecomputeSpend(ctx)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetCard(ctx, user.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.AggregateSpend.String())
}
