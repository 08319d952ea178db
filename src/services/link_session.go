package services

import (
	"bonustrack-server/src/models"
	"context"
	"fmt"
	"log"
	"strings"
)

// LinkSessionManager negotiates aggregator link sessions and records the
// resulting institution connections.
type LinkSessionManager struct {
	aggregator  Aggregator
	connections ConnectionRepository
	cards       CardRepository
	names       NameCache
}

// NewLinkSessionManager accepts a nil NameCache.
func NewLinkSessionManager(aggregator Aggregator, store Store, names NameCache) *LinkSessionManager {
	return &LinkSessionManager{
		aggregator:  aggregator,
		connections: store,
		cards:       store,
		names:       names,
	}
}

type LinkResult struct {
	ConnectionID         int64                    `json:"connection_id"`
	InstitutionID        string                   `json:"institution_id"`
	InstitutionName      string                   `json:"institution_name"`
	Accounts             []models.ExternalAccount `json:"accounts"`
	PriorConnectionCount int                      `json:"prior_connection_count"`
	LinkedAccountIDs     []string                 `json:"linked_account_ids"`
}

func (m *LinkSessionManager) CreateSession(ctx context.Context, userID int64) (string, error) {
	token, err := m.aggregator.CreateLinkSession(ctx, userID)
	if err != nil {
		return "", upstreamError("create link session", err)
	}
	return token, nil
}

// CompleteSession always records a new connection, even when the user already
// holds one for the same institution; the prior count lets the caller offer
// consolidation.
func (m *LinkSessionManager) CompleteSession(ctx context.Context, userID int64, publicToken string) (*LinkResult, error) {
	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return nil, fmt.Errorf("complete link: %w", models.ErrInvalidSessionResult)
	}

	grant, err := m.aggregator.ExchangeSession(ctx, publicToken)
	if err != nil {
		return nil, upstreamError("exchange session", err)
	}
	if grant == nil || grant.AccessToken == "" {
		return nil, fmt.Errorf("exchange session: empty credential: %w", models.ErrInvalidSessionResult)
	}

	accounts, err := m.aggregator.GetAccounts(ctx, grant.AccessToken)
	if err != nil {
		return nil, upstreamError("get accounts", err)
	}

	institutionID, err := m.aggregator.GetInstitution(ctx, grant.AccessToken)
	if err != nil {
		return nil, upstreamError("get institution", err)
	}
	if strings.TrimSpace(institutionID) == "" {
		institutionID = models.UnknownInstitutionID
	}
	institutionName := m.institutionName(ctx, institutionID)

	prior, err := m.connections.ListConnections(ctx, userID, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list prior connections: %w", err)
	}
	linked := []string{}
	for _, p := range prior {
		cards, err := m.cards.ListCardsByConnection(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list cards for connection %d: %w", p.ID, err)
		}
		for _, c := range cards {
			if c.ExternalAccountID != nil {
				linked = append(linked, *c.ExternalAccountID)
			}
		}
	}

	conn, err := m.connections.CreateConnection(ctx, &models.InstitutionConnection{
		UserID:          userID,
		InstitutionID:   institutionID,
		InstitutionName: institutionName,
		AccessToken:     grant.AccessToken,
		ItemID:          grant.ItemID,
	})
	if err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	if accounts == nil {
		accounts = []models.ExternalAccount{}
	}
	log.Printf("INFO: Linked item %s (%s) for user %d as connection %d, %d prior connections",
		grant.ItemID, institutionName, userID, conn.ID, len(prior))

	return &LinkResult{
		ConnectionID:         conn.ID,
		InstitutionID:        institutionID,
		InstitutionName:      institutionName,
		Accounts:             accounts,
		PriorConnectionCount: len(prior),
		LinkedAccountIDs:     linked,
	}, nil
}

// institutionName never fails; lookup problems fall back to a placeholder.
func (m *LinkSessionManager) institutionName(ctx context.Context, institutionID string) string {
	if institutionID == models.UnknownInstitutionID {
		return models.PlaceholderInstitution
	}
	if m.names != nil {
		if name, ok := m.names.Get(institutionID); ok {
			return name
		}
	}

	name, err := m.aggregator.GetInstitutionName(ctx, institutionID)
	if err != nil || strings.TrimSpace(name) == "" {
		log.Printf("WARN: Institution name lookup failed for %s, using placeholder: %v", institutionID, err)
		return models.PlaceholderInstitution
	}
	if m.names != nil {
		m.names.Set(institutionID, name)
	}
	return name
}

func (m *LinkSessionManager) ListConnections(ctx context.Context, userID int64, institutionID string) ([]models.ConnectionWithCards, error) {
	conns, err := m.connections.ListConnections(ctx, userID, strings.TrimSpace(institutionID))
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]models.ConnectionWithCards, 0, len(conns))
	for _, c := range conns {
		cards, err := m.cards.ListCardsByConnection(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list cards for connection %d: %w", c.ID, err)
		}
		if cards == nil {
			cards = []models.Card{}
		}
		out = append(out, models.ConnectionWithCards{InstitutionConnection: c, Cards: cards})
	}
	return out, nil
}
