package services

//go:generate mockgen -destination=mocks/mock_aggregator.go -package=mocks -source=aggregator.go

import (
	"bonustrack-server/src/models"
	"context"
	"errors"
	"fmt"
	"time"
)

// Aggregator is the financial-data provider used to link accounts and pull transactions.
type Aggregator interface {
	CreateLinkSession(ctx context.Context, userID int64) (string, error)
	ExchangeSession(ctx context.Context, publicToken string) (*models.AccessGrant, error)
	GetInstitution(ctx context.Context, accessToken string) (string, error)
	GetInstitutionName(ctx context.Context, institutionID string) (string, error)
	GetAccounts(ctx context.Context, accessToken string) ([]models.ExternalAccount, error)
	GetTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]models.AggregatorTransaction, error)
}

// upstreamError tags an aggregator failure as ErrUpstreamUnavailable unless the
// adapter already classified it.
func upstreamError(op string, err error) error {
	if errors.Is(err, models.ErrUpstreamUnavailable) || errors.Is(err, models.ErrInvalidSessionResult) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrUpstreamUnavailable, err)
}
