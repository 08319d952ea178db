package db

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `t.id, t.card_id, t.amount, t.merchant_name, t.category, t.transaction_date,
	t.pending, t.description, t.external_token, t.source, t.created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.CardID,
		&t.Amount,
		&t.MerchantName,
		&t.Category,
		&t.Date,
		&t.Pending,
		&t.Description,
		&t.ExternalToken,
		&t.Source,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, transactionID int64) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN cards c ON t.card_id = c.id
		WHERE t.id = $1 AND c.user_id = $2
	`
	t, err := scanTransaction(s.pool.QueryRow(ctx, query, transactionID, userID))
	if err != nil {
		return nil, mapError(err, "transaction")
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID, cardID int64) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN cards c ON t.card_id = c.id
		WHERE t.card_id = $1 AND c.user_id = $2
		ORDER BY t.transaction_date DESC, t.id DESC
	`
	rows, err := s.pool.Query(ctx, query, cardID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}

	return txns, rows.Err()
}

// InCardTx locks the card row with SELECT ... FOR UPDATE for the duration of fn.
func (s *Store) InCardTx(ctx context.Context, userID, cardID int64, fn func(tx services.CardTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 AND user_id = $2 FOR UPDATE`
		card, err := scanCard(tx.QueryRow(ctx, query, cardID, userID))
		if err != nil {
			return mapError(err, "card")
		}
		return fn(&cardTx{tx: tx, card: card})
	})
}

type cardTx struct {
	tx   pgx.Tx
	card *models.Card
}

func (c *cardTx) ExternalTokens(ctx context.Context) (map[string]struct{}, error) {
	query := `SELECT external_token FROM transactions WHERE card_id = $1 AND external_token IS NOT NULL`
	rows, err := c.tx.Query(ctx, query, c.card.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make(map[string]struct{})
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens[token] = struct{}{}
	}

	return tokens, rows.Err()
}

func (c *cardTx) InsertTransaction(ctx context.Context, n models.NewTransaction) (*models.Transaction, bool, error) {
	query := `
		WITH t AS (
			INSERT INTO transactions (card_id, amount, merchant_name, category, transaction_date,
				pending, description, external_token, source)
			VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (card_id, external_token) DO NOTHING
			RETURNING *
		)
		SELECT ` + transactionColumns + ` FROM t
	`
	t, err := scanTransaction(c.tx.QueryRow(ctx, query,
		c.card.ID,
		n.Amount.String(),
		n.MerchantName,
		n.Category,
		n.Date,
		n.Pending,
		n.Description,
		n.ExternalToken,
		n.Source,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err, "transaction")
	}
	return t, true, nil
}

func (c *cardTx) DeleteTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	query := `
		WITH t AS (
			DELETE FROM transactions WHERE id = $1 AND card_id = $2
			RETURNING *
		)
		SELECT ` + transactionColumns + ` FROM t
	`
	t, err := scanTransaction(c.tx.QueryRow(ctx, query, transactionID, c.card.ID))
	if err != nil {
		return nil, mapError(err, "transaction")
	}
	return t, nil
}

func (c *cardTx) RecomputeSpend(ctx context.Context) (decimal.Decimal, error) {
	query := `
		UPDATE cards
		SET aggregate_spend = (SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE card_id = $1),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING aggregate_spend
	`
	var spend decimal.Decimal
	if err := c.tx.QueryRow(ctx, query, c.card.ID).Scan(&spend); err != nil {
		return decimal.Zero, fmt.Errorf("recompute spend for card %d: %w", c.card.ID, err)
	}
	c.card.AggregateSpend = spend
	return spend, nil
}
