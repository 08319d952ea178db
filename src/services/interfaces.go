package services

import (
	"bonustrack-server/src/models"
	"context"

	"github.com/shopspring/decimal"
)

type UserRepository interface {
	CreateUser(ctx context.Context, email string, passwordHash []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, conn *models.InstitutionConnection) (*models.InstitutionConnection, error)
	GetConnection(ctx context.Context, userID, connectionID int64) (*models.InstitutionConnection, error)
	GetConnectionByItemID(ctx context.Context, itemID string) (*models.InstitutionConnection, error)
	// ListConnections returns the user's connections; an empty institutionID means all.
	ListConnections(ctx context.Context, userID int64, institutionID string) ([]models.InstitutionConnection, error)
}

type CardRepository interface {
	CreateCard(ctx context.Context, params models.CreateCardParams) (*models.Card, error)
	GetCard(ctx context.Context, userID, cardID int64) (*models.Card, error)
	FindCardByExternalAccount(ctx context.Context, userID int64, externalAccountID string) (*models.Card, error)
	AttachCardToConnection(ctx context.Context, userID, cardID, connectionID int64) (*models.Card, error)
	UpdateCard(ctx context.Context, userID, cardID int64, params models.UpdateCardParams) (*models.Card, error)
	ListCards(ctx context.Context, userID int64) ([]models.Card, error)
	ListCardsByConnection(ctx context.Context, connectionID int64) ([]models.Card, error)
	// ListLinkedCards returns every linked card; userID 0 means all users.
	ListLinkedCards(ctx context.Context, userID int64) ([]models.Card, error)
	DeleteCard(ctx context.Context, userID, cardID int64) error
}

type TransactionRepository interface {
	GetTransaction(ctx context.Context, userID, transactionID int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID, cardID int64) ([]models.Transaction, error)
	// InCardTx runs fn as one atomic unit holding an exclusive lock on the card.
	// Nothing fn did is kept if fn returns an error.
	InCardTx(ctx context.Context, userID, cardID int64, fn func(tx CardTx) error) error
}

// CardTx is the set of ledger mutations allowed while a card is locked.
type CardTx interface {
	ExternalTokens(ctx context.Context) (map[string]struct{}, error)
	// InsertTransaction reports false when the external token is already stored.
	InsertTransaction(ctx context.Context, txn models.NewTransaction) (*models.Transaction, bool, error)
	DeleteTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error)
	// RecomputeSpend writes SUM(amount) of the card's transactions back to the card.
	RecomputeSpend(ctx context.Context) (decimal.Decimal, error)
}

type Store interface {
	UserRepository
	ConnectionRepository
	CardRepository
	TransactionRepository
}

// NameCache memoizes institution display names.
type NameCache interface {
	Get(institutionID string) (string, bool)
	Set(institutionID, name string)
}
