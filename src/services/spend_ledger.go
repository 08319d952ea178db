package services

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/util"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SpendLedger keeps every card's aggregate spend equal to the sum of its
// transactions. Each mutation recomputes the sum inside the card's locked unit.
type SpendLedger struct {
	cards CardRepository
	txns  TransactionRepository
}

func NewSpendLedger(cards CardRepository, txns TransactionRepository) *SpendLedger {
	return &SpendLedger{cards: cards, txns: txns}
}

type AddTransactionInput struct {
	CardID       int64
	Amount       string
	MerchantName string
	Category     string
	Date         string
	Pending      bool
	Description  *string
}

type CreateCardInput struct {
	Name             string
	Issuer           string
	Last4            string
	BonusAmount      int64
	BonusUnit        string
	SpendingRequired string
	Deadline         string
}

type UpdateCardInput struct {
	CreateCardInput
	BonusEarned bool
}

// LedgerResult is a mutated transaction together with the card's new aggregate spend.
type LedgerResult struct {
	Transaction    *models.Transaction `json:"transaction,omitempty"`
	AggregateSpend decimal.Decimal     `json:"aggregate_spend"`
}

func (l *SpendLedger) AddTransaction(ctx context.Context, userID int64, in AddTransactionInput) (*LedgerResult, error) {
	amount, err := util.ParseAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	merchant := strings.TrimSpace(in.MerchantName)
	if merchant == "" {
		return nil, models.ValidationError("merchant_name", "is required")
	}
	date, err := util.ParseDate("date", in.Date)
	if err != nil {
		return nil, err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = models.DefaultCategory
	}

	result := &LedgerResult{}
	err = l.txns.InCardTx(ctx, userID, in.CardID, func(tx CardTx) error {
		created, _, err := tx.InsertTransaction(ctx, models.NewTransaction{
			CardID:       in.CardID,
			Amount:       amount,
			MerchantName: merchant,
			Category:     category,
			Date:         date,
			Pending:      in.Pending,
			Description:  in.Description,
			Source:       models.SourceManual,
		})
		if err != nil {
			return err
		}
		spend, err := tx.RecomputeSpend(ctx)
		if err != nil {
			return err
		}
		result.Transaction = created
		result.AggregateSpend = spend
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add transaction to card %d: %w", in.CardID, err)
	}

	log.Printf("INFO: Added transaction %d (%s) to card %d for user %d, spend now %s",
		result.Transaction.ID, amount.StringFixed(2), in.CardID, userID, result.AggregateSpend.StringFixed(2))
	return result, nil
}

func (l *SpendLedger) DeleteTransaction(ctx context.Context, userID, transactionID int64) (*LedgerResult, error) {
	txn, err := l.txns.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	result := &LedgerResult{}
	err = l.txns.InCardTx(ctx, userID, txn.CardID, func(tx CardTx) error {
		deleted, err := tx.DeleteTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		spend, err := tx.RecomputeSpend(ctx)
		if err != nil {
			return err
		}
		result.Transaction = deleted
		result.AggregateSpend = spend
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete transaction %d: %w", transactionID, err)
	}

	log.Printf("INFO: Deleted transaction %d from card %d for user %d, spend now %s",
		transactionID, txn.CardID, userID, result.AggregateSpend.StringFixed(2))
	return result, nil
}

// cardFields validates the editable card fields. deadline is nil when none was given.
func cardFields(in CreateCardInput) (models.UpdateCardParams, *time.Time, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.UpdateCardParams{}, nil, models.ValidationError("name", "is required")
	}
	if !util.ValidateLast4(in.Last4) {
		return models.UpdateCardParams{}, nil, models.ValidationError("last4", "must be four digits")
	}
	if in.BonusAmount < 0 {
		return models.UpdateCardParams{}, nil, models.ValidationError("bonus_amount", "must not be negative")
	}
	required := decimal.Zero
	if strings.TrimSpace(in.SpendingRequired) != "" {
		var err error
		if required, err = util.ParseAmount("spending_required", in.SpendingRequired); err != nil {
			return models.UpdateCardParams{}, nil, err
		}
	}
	var deadline *time.Time
	if strings.TrimSpace(in.Deadline) != "" {
		d, err := util.ParseDate("deadline", in.Deadline)
		if err != nil {
			return models.UpdateCardParams{}, nil, err
		}
		deadline = &d
	}
	unit := strings.TrimSpace(in.BonusUnit)
	if unit == "" {
		unit = models.DefaultBonusUnit
	}
	return models.UpdateCardParams{
		Name:             name,
		Issuer:           strings.TrimSpace(in.Issuer),
		Last4:            in.Last4,
		BonusAmount:      in.BonusAmount,
		BonusUnit:        unit,
		SpendingRequired: required,
	}, deadline, nil
}

func (l *SpendLedger) CreateCard(ctx context.Context, userID int64, in CreateCardInput) (*models.Card, error) {
	fields, deadline, err := cardFields(in)
	if err != nil {
		return nil, err
	}
	due := util.Day(time.Now()).AddDate(0, 0, models.DefaultDeadlineDays)
	if deadline != nil {
		due = *deadline
	}

	card, err := l.cards.CreateCard(ctx, models.CreateCardParams{
		UserID:           userID,
		Name:             fields.Name,
		Issuer:           fields.Issuer,
		Last4:            fields.Last4,
		BonusAmount:      fields.BonusAmount,
		BonusUnit:        fields.BonusUnit,
		SpendingRequired: fields.SpendingRequired,
		Deadline:         due,
	})
	if err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	log.Printf("INFO: Created manual card %d for user %d", card.ID, userID)
	return card, nil
}

// UpdateCard replaces the editable fields of a card. Aggregate spend and the
// account link are left alone; an empty deadline keeps the current one.
func (l *SpendLedger) UpdateCard(ctx context.Context, userID, cardID int64, in UpdateCardInput) (*models.CardProgress, error) {
	fields, deadline, err := cardFields(in.CreateCardInput)
	if err != nil {
		return nil, err
	}
	current, err := l.cards.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	fields.Deadline = current.Deadline
	if deadline != nil {
		fields.Deadline = *deadline
	}
	fields.BonusEarned = in.BonusEarned

	card, err := l.cards.UpdateCard(ctx, userID, cardID, fields)
	if err != nil {
		return nil, fmt.Errorf("update card %d: %w", cardID, err)
	}
	log.Printf("INFO: Updated card %d for user %d", card.ID, userID)
	p := models.NewCardProgress(*card, time.Now())
	return &p, nil
}

func (l *SpendLedger) GetCard(ctx context.Context, userID, cardID int64) (*models.CardProgress, error) {
	card, err := l.cards.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	p := models.NewCardProgress(*card, time.Now())
	return &p, nil
}

func (l *SpendLedger) ListCards(ctx context.Context, userID int64) ([]models.CardProgress, error) {
	cards, err := l.cards.ListCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	now := time.Now()
	out := make([]models.CardProgress, 0, len(cards))
	for _, c := range cards {
		out = append(out, models.NewCardProgress(c, now))
	}
	return out, nil
}

// DeleteCard removes the card and, by cascade, its transactions.
func (l *SpendLedger) DeleteCard(ctx context.Context, userID, cardID int64) error {
	if err := l.cards.DeleteCard(ctx, userID, cardID); err != nil {
		return err
	}
	log.Printf("INFO: Deleted card %d for user %d", cardID, userID)
	return nil
}

func (l *SpendLedger) ListTransactions(ctx context.Context, userID, cardID int64) ([]models.Transaction, error) {
	if _, err := l.cards.GetCard(ctx, userID, cardID); err != nil {
		return nil, err
	}
	return l.txns.ListTransactions(ctx, userID, cardID)
}
