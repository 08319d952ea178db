package services

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/util"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SyncWindowDays is the trailing window fetched on every sync.
const SyncWindowDays = 90

// Synchronizer pulls a card's recent transactions from the aggregator and
// reconciles them into the ledger.
type Synchronizer struct {
	aggregator  Aggregator
	cards       CardRepository
	connections ConnectionRepository
	txns        TransactionRepository
}

func NewSynchronizer(aggregator Aggregator, store Store) *Synchronizer {
	return &Synchronizer{
		aggregator:  aggregator,
		cards:       store,
		connections: store,
		txns:        store,
	}
}

type SyncResult struct {
	CardID         int64           `json:"card_id"`
	Fetched        int             `json:"fetched"`
	Inserted       int             `json:"inserted_count"`
	Skipped        int             `json:"skipped"`
	AggregateSpend decimal.Decimal `json:"aggregate_spend"`
}

func (s *Synchronizer) SyncCard(ctx context.Context, userID, cardID int64) (*SyncResult, error) {
	card, err := s.cards.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, card)
}

// Sync is idempotent: transactions whose identity token is already stored for
// the card are skipped, and the aggregate spend is recomputed from scratch.
func (s *Synchronizer) Sync(ctx context.Context, card *models.Card) (*SyncResult, error) {
	if !card.IsLinked() {
		return nil, fmt.Errorf("sync card %d: %w", card.ID, models.ErrNotLinked)
	}

	conn, err := s.connections.GetConnection(ctx, card.UserID, *card.ConnectionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("sync card %d: connection %d missing: %w", card.ID, *card.ConnectionID, models.ErrNotLinked)
	}
	if err != nil {
		return nil, fmt.Errorf("sync card %d: %w", card.ID, err)
	}
	if strings.TrimSpace(conn.AccessToken) == "" {
		return nil, fmt.Errorf("sync card %d: connection %d has no access credential: %w", card.ID, conn.ID, models.ErrNotLinked)
	}

	end := util.Day(time.Now())
	start := end.AddDate(0, 0, -SyncWindowDays)
	fetched, err := s.aggregator.GetTransactions(ctx, conn.AccessToken, start, end)
	if err != nil {
		return nil, upstreamError(fmt.Sprintf("fetch transactions for card %d", card.ID), err)
	}

	accountID := *card.ExternalAccountID
	candidates := make([]models.NewTransaction, 0, len(fetched))
	for _, t := range fetched {
		if t.ExternalAccountID != accountID {
			continue
		}
		candidates = append(candidates, toNewTransaction(card.ID, t))
	}

	result := &SyncResult{CardID: card.ID, Fetched: len(candidates)}
	err = s.txns.InCardTx(ctx, card.UserID, card.ID, func(tx CardTx) error {
		seen, err := tx.ExternalTokens(ctx)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			token := *c.ExternalToken
			if _, dup := seen[token]; dup {
				result.Skipped++
				continue
			}
			seen[token] = struct{}{}

			_, inserted, err := tx.InsertTransaction(ctx, c)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		result.AggregateSpend, err = tx.RecomputeSpend(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sync card %d: %w", card.ID, err)
	}

	log.Printf("INFO: Synced card %d for user %d: fetched %d, inserted %d, skipped %d, spend %s",
		card.ID, card.UserID, result.Fetched, result.Inserted, result.Skipped, result.AggregateSpend.StringFixed(2))
	return result, nil
}

func toNewTransaction(cardID int64, t models.AggregatorTransaction) models.NewTransaction {
	token := IdentityToken(t)
	merchant := strings.TrimSpace(t.MerchantName)
	if merchant == "" {
		merchant = strings.TrimSpace(t.Description)
	}
	category := strings.TrimSpace(t.Category)
	if category == "" {
		category = models.DefaultCategory
	}
	var description *string
	if d := strings.TrimSpace(t.Description); d != "" {
		description = &d
	}
	return models.NewTransaction{
		CardID:        cardID,
		Amount:        t.Amount.Abs(),
		MerchantName:  merchant,
		Category:      category,
		Date:          util.Day(t.Date),
		Pending:       t.Pending,
		Description:   description,
		ExternalToken: &token,
		Source:        models.SourceSync,
	}
}
