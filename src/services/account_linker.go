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

// AccountLinker turns aggregator accounts chosen by the user into tracked cards.
type AccountLinker struct {
	cards       CardRepository
	connections ConnectionRepository
	sync        *Synchronizer
}

func NewAccountLinker(store Store, sync *Synchronizer) *AccountLinker {
	return &AccountLinker{cards: store, connections: store, sync: sync}
}

type AccountSelection struct {
	ExternalAccountID string `json:"plaid_account_id"`
	Name              string `json:"name"`
	Issuer            string `json:"issuer"`
	Last4             string `json:"last4"`
}

type FinalizeInput struct {
	ConnectionID  int64
	Accounts      []AccountSelection
	NewAccountIDs []string
	Deadline      *time.Time
}

// CardOutcome is one created or linked card. Warning is set when the card was
// created but its initial sync failed.
type CardOutcome struct {
	Card    models.Card `json:"card"`
	Created bool        `json:"created"`
	Warning string      `json:"warning,omitempty"`
}

type FinalizeResult struct {
	Cards   []CardOutcome `json:"cards"`
	Count   int           `json:"count"`
	Skipped []string      `json:"skipped"`
	Errors  []string      `json:"errors"`
}

// Finalize processes every account on its own; one account failing does not
// stop the rest. Accounts outside NewAccountIDs are attached to existing cards
// and skipped without error when no card claims them.
func (l *AccountLinker) Finalize(ctx context.Context, userID int64, in FinalizeInput) (*FinalizeResult, error) {
	conn, err := l.connections.GetConnection(ctx, userID, in.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("finalize accounts: %w", err)
	}

	isNew := make(map[string]bool, len(in.NewAccountIDs))
	for _, id := range in.NewAccountIDs {
		isNew[id] = true
	}

	result := &FinalizeResult{Cards: []CardOutcome{}, Skipped: []string{}, Errors: []string{}}
	for _, acct := range in.Accounts {
		acct.ExternalAccountID = strings.TrimSpace(acct.ExternalAccountID)
		if acct.ExternalAccountID == "" {
			result.Errors = append(result.Errors, "account with empty id ignored")
			continue
		}

		if isNew[acct.ExternalAccountID] {
			outcome, err := l.createCard(ctx, userID, conn, acct, in.Deadline)
			if err != nil {
				log.Printf("ERROR: Failed to create card for account %s on connection %d: %v", acct.ExternalAccountID, conn.ID, err)
				result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", acct.ExternalAccountID, err))
				continue
			}
			result.Cards = append(result.Cards, *outcome)
			continue
		}

		card, err := l.linkExisting(ctx, userID, conn, acct.ExternalAccountID)
		if err != nil {
			log.Printf("ERROR: Failed to link account %s on connection %d: %v", acct.ExternalAccountID, conn.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", acct.ExternalAccountID, err))
			continue
		}
		if card == nil {
			result.Skipped = append(result.Skipped, acct.ExternalAccountID)
			continue
		}
		result.Cards = append(result.Cards, CardOutcome{Card: *card})
	}

	result.Count = len(result.Cards)
	log.Printf("INFO: Finalized connection %d for user %d: %d cards, %d skipped, %d errors",
		conn.ID, userID, result.Count, len(result.Skipped), len(result.Errors))
	return result, nil
}

// linkExisting returns nil, nil when no card holds the external account.
func (l *AccountLinker) linkExisting(ctx context.Context, userID int64, conn *models.InstitutionConnection, externalAccountID string) (*models.Card, error) {
	card, err := l.cards.FindCardByExternalAccount(ctx, userID, externalAccountID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l.cards.AttachCardToConnection(ctx, userID, card.ID, conn.ID)
}

func (l *AccountLinker) createCard(ctx context.Context, userID int64, conn *models.InstitutionConnection, acct AccountSelection, deadline *time.Time) (*CardOutcome, error) {
	if _, err := l.cards.FindCardByExternalAccount(ctx, userID, acct.ExternalAccountID); err == nil {
		return nil, fmt.Errorf("account already tracked by another card: %w", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	due := util.Day(time.Now()).AddDate(0, 0, models.DefaultDeadlineDays)
	if deadline != nil && !deadline.IsZero() {
		due = *deadline
	}
	name := strings.TrimSpace(acct.Name)
	if name == "" {
		name = conn.InstitutionName
	}
	issuer := strings.TrimSpace(acct.Issuer)
	if issuer == "" {
		issuer = conn.InstitutionName
	}
	last4 := acct.Last4
	if !util.ValidateLast4(last4) {
		last4 = ""
	}
	externalID := acct.ExternalAccountID
	connID := conn.ID

	card, err := l.cards.CreateCard(ctx, models.CreateCardParams{
		UserID:            userID,
		ConnectionID:      &connID,
		ExternalAccountID: &externalID,
		Name:              name,
		Issuer:            issuer,
		Last4:             last4,
		BonusAmount:       0,
		BonusUnit:         models.DefaultBonusUnit,
		SpendingRequired:  decimal.Zero,
		Deadline:          due,
	})
	if err != nil {
		return nil, err
	}

	outcome := &CardOutcome{Card: *card, Created: true}
	synced, err := l.sync.Sync(ctx, card)
	if err != nil {
		log.Printf("WARN: Initial sync failed for new card %d (account %s): %v", card.ID, externalID, err)
		outcome.Warning = fmt.Sprintf("card created but initial sync failed: %v", err)
		return outcome, nil
	}
	outcome.Card.AggregateSpend = synced.AggregateSpend
	return outcome, nil
}
