package db

import (
	"bonustrack-server/src/models"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const cardColumns = `id, user_id, connection_id, external_account_id, name, issuer, last4,
	bonus_amount, bonus_unit, spending_required, aggregate_spend, deadline, bonus_earned,
	created_at, updated_at`

func scanCard(row pgx.Row) (*models.Card, error) {
	var c models.Card
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.ConnectionID,
		&c.ExternalAccountID,
		&c.Name,
		&c.Issuer,
		&c.Last4,
		&c.BonusAmount,
		&c.BonusUnit,
		&c.SpendingRequired,
		&c.AggregateSpend,
		&c.Deadline,
		&c.BonusEarned,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) queryCards(ctx context.Context, q querier, query string, args ...any) ([]models.Card, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}

	return cards, rows.Err()
}

func (s *Store) CreateCard(ctx context.Context, p models.CreateCardParams) (*models.Card, error) {
	query := `
		INSERT INTO cards (user_id, connection_id, external_account_id, name, issuer, last4,
			bonus_amount, bonus_unit, spending_required, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
		RETURNING ` + cardColumns
	c, err := scanCard(s.pool.QueryRow(ctx, query,
		p.UserID,
		p.ConnectionID,
		p.ExternalAccountID,
		p.Name,
		p.Issuer,
		p.Last4,
		p.BonusAmount,
		p.BonusUnit,
		p.SpendingRequired.String(),
		p.Deadline,
	))
	if err != nil {
		return nil, mapError(err, "card")
	}
	return c, nil
}

func (s *Store) GetCard(ctx context.Context, userID, cardID int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 AND user_id = $2`
	c, err := scanCard(s.pool.QueryRow(ctx, query, cardID, userID))
	if err != nil {
		return nil, mapError(err, "card")
	}
	return c, nil
}

func (s *Store) FindCardByExternalAccount(ctx context.Context, userID int64, externalAccountID string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = $1 AND external_account_id = $2`
	c, err := scanCard(s.pool.QueryRow(ctx, query, userID, externalAccountID))
	if err != nil {
		return nil, mapError(err, "card")
	}
	return c, nil
}

func (s *Store) AttachCardToConnection(ctx context.Context, userID, cardID, connectionID int64) (*models.Card, error) {
	query := `
		UPDATE cards
		SET connection_id = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		  AND EXISTS (SELECT 1 FROM institution_connections WHERE id = $3 AND user_id = $2)
		RETURNING ` + cardColumns
	c, err := scanCard(s.pool.QueryRow(ctx, query, cardID, userID, connectionID))
	if err != nil {
		return nil, mapError(err, "card")
	}
	return c, nil
}

func (s *Store) UpdateCard(ctx context.Context, userID, cardID int64, p models.UpdateCardParams) (*models.Card, error) {
	query := `
		UPDATE cards
		SET name = $3, issuer = $4, last4 = $5, bonus_amount = $6, bonus_unit = $7,
		    spending_required = $8::numeric, deadline = $9, bonus_earned = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + cardColumns
	c, err := scanCard(s.pool.QueryRow(ctx, query,
		cardID,
		userID,
		p.Name,
		p.Issuer,
		p.Last4,
		p.BonusAmount,
		p.BonusUnit,
		p.SpendingRequired.String(),
		p.Deadline,
		p.BonusEarned,
	))
	if err != nil {
		return nil, mapError(err, "card")
	}
	return c, nil
}

func (s *Store) ListCards(ctx context.Context, userID int64) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = $1 ORDER BY id`
	return s.queryCards(ctx, s.pool, query, userID)
}

func (s *Store) ListCardsByConnection(ctx context.Context, connectionID int64) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE connection_id = $1 ORDER BY id`
	return s.queryCards(ctx, s.pool, query, connectionID)
}

func (s *Store) ListLinkedCards(ctx context.Context, userID int64) ([]models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE connection_id IS NOT NULL
		  AND external_account_id IS NOT NULL AND external_account_id <> ''
		  AND ($1::bigint = 0 OR user_id = $1)
		ORDER BY id
	`
	return s.queryCards(ctx, s.pool, query, userID)
}

func (s *Store) DeleteCard(ctx context.Context, userID, cardID int64) error {
	query := `DELETE FROM cards WHERE id = $1 AND user_id = $2`
	cmd, err := s.pool.Exec(ctx, query, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.NotFound("card")
	}
	return nil
}
