package db

import (
	"bonustrack-server/src/models"
	"context"
	"strings"
)

func (s *Store) CreateUser(ctx context.Context, email string, passwordHash []byte) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at
	`
	var u models.User
	err := s.pool.QueryRow(ctx, query, strings.ToLower(email), passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := s.pool.QueryRow(ctx, query, strings.ToLower(email)).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return &u, nil
}
