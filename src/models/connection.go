package models

import "time"

const (
	UnknownInstitutionID   = "unknown"
	PlaceholderInstitution = "Connected Bank"
)

type InstitutionConnection struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	AccessToken     string    `json:"-"`
	ItemID          string    `json:"item_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConnectionWithCards is a connection together with the cards attached to it.
type ConnectionWithCards struct {
	InstitutionConnection
	Cards []Card `json:"cards"`
}

// AccessGrant is the durable credential returned by a completed link session.
type AccessGrant struct {
	AccessToken string
	ItemID      string
}
