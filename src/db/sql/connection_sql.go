package db

import (
	"bonustrack-server/src/models"
	"context"

	"github.com/jackc/pgx/v5"
)

const connectionColumns = `id, user_id, institution_id, institution_name, access_token, item_id, created_at`

func scanConnection(row pgx.Row) (*models.InstitutionConnection, error) {
	var c models.InstitutionConnection
	err := row.Scan(&c.ID, &c.UserID, &c.InstitutionID, &c.InstitutionName, &c.AccessToken, &c.ItemID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateConnection(ctx context.Context, conn *models.InstitutionConnection) (*models.InstitutionConnection, error) {
	query := `
		INSERT INTO institution_connections (user_id, institution_id, institution_name, access_token, item_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + connectionColumns
	c, err := scanConnection(s.pool.QueryRow(ctx, query,
		conn.UserID, conn.InstitutionID, conn.InstitutionName, conn.AccessToken, conn.ItemID))
	if err != nil {
		return nil, mapError(err, "connection")
	}
	return c, nil
}

func (s *Store) GetConnection(ctx context.Context, userID, connectionID int64) (*models.InstitutionConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM institution_connections WHERE id = $1 AND user_id = $2`
	c, err := scanConnection(s.pool.QueryRow(ctx, query, connectionID, userID))
	if err != nil {
		return nil, mapError(err, "connection")
	}
	return c, nil
}

func (s *Store) GetConnectionByItemID(ctx context.Context, itemID string) (*models.InstitutionConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM institution_connections WHERE item_id = $1`
	c, err := scanConnection(s.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		return nil, mapError(err, "connection")
	}
	return c, nil
}

func (s *Store) ListConnections(ctx context.Context, userID int64, institutionID string) ([]models.InstitutionConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM institution_connections
		WHERE user_id = $1 AND ($2::text = '' OR institution_id = $2)
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, userID, institutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []models.InstitutionConnection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}

	return conns, rows.Err()
}
