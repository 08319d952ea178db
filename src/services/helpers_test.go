package services_test

import (
	"bonustrack-server/src/db/memory"
	"bonustrack-server/src/models"
	"bonustrack-server/src/services/mocks"
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testUser int64 = 1

type fixture struct {
	store      *memory.Store
	aggregator *mocks.MockAggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &fixture{store: memory.NewStore(), aggregator: mocks.NewMockAggregator(ctrl)}
}

func (f *fixture) connection(t *testing.T, institutionID, accessToken, itemID string) *models.InstitutionConnection {
	t.Helper()
	conn, err := f.store.CreateConnection(context.Background(), &models.InstitutionConnection{
		UserID:          testUser,
		InstitutionID:   institutionID,
		InstitutionName: "Test Bank",
		AccessToken:     accessToken,
		ItemID:          itemID,
	})
	require.NoError(t, err)
	return conn
}

func (f *fixture) card(t *testing.T, required string, externalID *string, connID *int64) *models.Card {
	t.Helper()
	card, err := f.store.CreateCard(context.Background(), models.CreateCardParams{
		UserID:            testUser,
		ConnectionID:      connID,
		ExternalAccountID: externalID,
		Name:              "Test Card",
		BonusUnit:         models.DefaultBonusUnit,
		SpendingRequired:  decimal.RequireFromString(required),
		Deadline:          time.Now().AddDate(0, 0, 60),
	})
	require.NoError(t, err)
	return card
}

func (f *fixture) linkedCard(t *testing.T, accountID string) (*models.Card, *models.InstitutionConnection) {
	t.Helper()
	conn := f.connection(t, "ins_1", "tok-"+accountID, "item-"+accountID)
	return f.card(t, "4000", &accountID, &conn.ID), conn
}

func upstreamTxn(accountID, id, amount, name string, daysAgo int) models.AggregatorTransaction {
	return models.AggregatorTransaction{
		ExternalAccountID: accountID,
		ExternalTxnID:     id,
		Amount:            decimal.RequireFromString(amount),
		MerchantName:      name,
		Description:       name,
		Category:          "FOOD_AND_DRINK",
		Date:              time.Now().UTC().AddDate(0, 0, -daysAgo),
	}
}

func sumTransactions(t *testing.T, s *memory.Store, cardID int64) decimal.Decimal {
	t.Helper()
	txns, err := s.ListTransactions(context.Background(), testUser, cardID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Amount)
	}
	return sum
}

func strPtr(s string) *string { return &s }
