package services_test

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncInsertsOnlyNewTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, conn := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	gomock.InOrder(
		f.aggregator.EXPECT().
			GetTransactions(gomock.Any(), conn.AccessToken, gomock.Any(), gomock.Any()).
			Return([]models.AggregatorTransaction{upstreamTxn("acc-1", "t1", "100.00", "Airline", 5)}, nil),
		f.aggregator.EXPECT().
			GetTransactions(gomock.Any(), conn.AccessToken, gomock.Any(), gomock.Any()).
			Return([]models.AggregatorTransaction{
				upstreamTxn("acc-1", "t1", "100.00", "Airline", 5),
				upstreamTxn("acc-1", "t2", "20.00", "Cafe", 3),
				upstreamTxn("acc-1", "t3", "7.50", "Bakery", 1),
			}, nil),
	)

	first, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Fetched)
	assert.Equal(t, 2, second.Inserted)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, "127.50", second.AggregateSpend.StringFixed(2))
	assert.True(t, second.AggregateSpend.Equal(sumTransactions(t, f.store, card.ID)))
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	feed := []models.AggregatorTransaction{
		upstreamTxn("acc-1", "t1", "12.00", "Books", 2),
		upstreamTxn("acc-1", "", "8.00", "Corner Store", 4),
	}
	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(feed, nil).Times(2)

	first, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	second, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.True(t, first.AggregateSpend.Equal(second.AggregateSpend))
}

func TestSyncDedupsWithinOneFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{
			upstreamTxn("acc-1", "dup", "10.00", "Gas", 1),
			upstreamTxn("acc-1", "dup", "10.00", "Gas", 1),
		}, nil)

	res, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "10.00", res.AggregateSpend.StringFixed(2))
}

func TestSyncFiltersAccountAndNormalizesAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	noMerchant := upstreamTxn("acc-1", "t2", "-15.25", "", 2)
	noMerchant.Description = "POS PURCHASE 123"
	noMerchant.Category = ""

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{
			upstreamTxn("acc-1", "t1", "40.00", "Hotel", 3),
			upstreamTxn("acc-other", "x1", "999.00", "Elsewhere", 3),
			noMerchant,
		}, nil)

	res, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, "55.25", res.AggregateSpend.StringFixed(2))

	txns, err := f.store.ListTransactions(ctx, testUser, card.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.False(t, txn.Amount.IsNegative())
		assert.Equal(t, models.SourceSync, txn.Source)
		if txn.ExternalToken != nil && *txn.ExternalToken == "txn:t2" {
			assert.Equal(t, "POS PURCHASE 123", txn.MerchantName)
			assert.Equal(t, models.DefaultCategory, txn.Category)
		}
	}
}

func TestSyncUsesTrailingWindow(t *testing.T) {
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, start, end time.Time) ([]models.AggregatorTransaction, error) {
			assert.Equal(t, services.SyncWindowDays, int(end.Sub(start).Hours()/24))
			assert.WithinDuration(t, time.Now().UTC(), end, 24*time.Hour)
			return nil, nil
		})

	res, err := syncer.SyncCard(context.Background(), testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.True(t, res.AggregateSpend.IsZero())
}

func TestSyncRequiresLinkedCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	manual := f.card(t, "1000", nil, nil)
	_, err := syncer.SyncCard(ctx, testUser, manual.ID)
	assert.ErrorIs(t, err, models.ErrNotLinked)

	orphan := f.card(t, "1000", strPtr("acc-9"), nil)
	_, err = syncer.SyncCard(ctx, testUser, orphan.ID)
	assert.ErrorIs(t, err, models.ErrNotLinked)

	conn := f.connection(t, "ins_2", "", "item-empty")
	noCredential := f.card(t, "1000", strPtr("acc-10"), &conn.ID)
	_, err = syncer.SyncCard(ctx, testUser, noCredential.ID)
	assert.ErrorIs(t, err, models.ErrNotLinked)

	_, err = syncer.SyncCard(ctx, testUser, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSyncUpstreamFailureInsertsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))

	_, err := syncer.SyncCard(ctx, testUser, card.ID)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	txns, err := f.store.ListTransactions(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSyncSelfHealsDriftedSpend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	// Insert a row without recomputing so the stored spend lags the rows.
	err := f.store.InCardTx(ctx, testUser, card.ID, func(tx services.CardTx) error {
		_, _, err := tx.InsertTransaction(ctx, models.NewTransaction{
			CardID:       card.ID,
			Amount:       decimal.RequireFromString("30"),
			MerchantName: "Grocer",
			Category:     "Groceries",
			Date:         time.Now().UTC(),
			Source:       models.SourceManual,
		})
		return err
	})
	require.NoError(t, err)

	drifted, err := f.store.GetCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	require.True(t, drifted.AggregateSpend.IsZero())

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{upstreamTxn("acc-1", "t1", "70", "Rail", 1)}, nil)

	res, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", res.AggregateSpend.String())

	healed, err := f.store.GetCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.True(t, sumTransactions(t, f.store, card.ID).Equal(healed.AggregateSpend))
}

func TestSyncKeepsDistinctMerchantsWithoutIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	card, _ := f.linkedCard(t, "acc-1")
	syncer := services.NewSynchronizer(f.aggregator, f.store)

	coffee := upstreamTxn("acc-1", "", "10.00", "Coffee Shop", 1)
	coffee.Description = ""
	books := upstreamTxn("acc-1", "", "10.00", "Bookstore", 1)
	books.Description = ""

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{coffee, books}, nil)

	res, err := syncer.SyncCard(ctx, testUser, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "20.00", res.AggregateSpend.StringFixed(2))
}
