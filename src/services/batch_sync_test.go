package services_test

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSyncIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	good, goodConn := f.linkedCard(t, "acc-good")
	bad, badConn := f.linkedCard(t, "acc-bad")
	f.card(t, "100", nil, nil)

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), goodConn.AccessToken, gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{upstreamTxn("acc-good", "g1", "10", "Cafe", 1)}, nil)
	f.aggregator.EXPECT().GetTransactions(gomock.Any(), badConn.AccessToken, gomock.Any(), gomock.Any()).
		Return(nil, errors.New("ITEM_LOGIN_REQUIRED"))

	batch := services.NewBatchSyncer(services.NewSynchronizer(f.aggregator, f.store), f.store, 2)
	res, err := batch.SyncUser(context.Background(), testUser)
	require.NoError(t, err)

	require.Len(t, res.Synced, 1)
	assert.Equal(t, good.ID, res.Synced[0].CardID)
	assert.Equal(t, 1, res.Synced[0].Inserted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, bad.ID, res.Failed[0].CardID)
}

func TestBatchSyncConnection(t *testing.T) {
	f := newFixture(t)
	card, conn := f.linkedCard(t, "acc-1")

	f.aggregator.EXPECT().GetTransactions(gomock.Any(), conn.AccessToken, gomock.Any(), gomock.Any()).
		Return([]models.AggregatorTransaction{upstreamTxn("acc-1", "a", "5", "Snack", 1)}, nil).
		Times(2)

	batch := services.NewBatchSyncer(services.NewSynchronizer(f.aggregator, f.store), f.store, 0)
	res, err := batch.SyncConnection(context.Background(), conn.ItemID)
	require.NoError(t, err)
	require.Len(t, res.Synced, 1)
	assert.Equal(t, card.ID, res.Synced[0].CardID)

	_, err = batch.SyncConnection(context.Background(), "missing-item")
	assert.ErrorIs(t, err, models.ErrNotFound)

	all, err := batch.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all.Failed)
	require.Len(t, all.Synced, 1)
	assert.Equal(t, 0, all.Synced[0].Inserted)
}
