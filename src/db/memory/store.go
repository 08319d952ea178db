// Package memory is a process-local implementation of the repositories with
// the same semantics as the Postgres store. Every card unit runs under one
// store-wide lock, so card updates are serialized.
package memory

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.Mutex

	userSeq, connSeq, cardSeq, txnSeq int64

	users       map[int64]models.User
	connections map[int64]models.InstitutionConnection
	cards       map[int64]models.Card
	txns        map[int64]models.Transaction
}

var _ services.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:       make(map[int64]models.User),
		connections: make(map[int64]models.InstitutionConnection),
		cards:       make(map[int64]models.Card),
		txns:        make(map[int64]models.Transaction),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// Users

func (s *Store) CreateUser(ctx context.Context, email string, passwordHash []byte) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return nil, models.ErrConflict
		}
	}
	s.userSeq++
	u := models.User{ID: s.userSeq, Email: email, PasswordHash: passwordHash, CreatedAt: now()}
	s.users[u.ID] = u
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, models.NotFound("user")
}

// Connections

func (s *Store) CreateConnection(ctx context.Context, conn *models.InstitutionConnection) (*models.InstitutionConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.connections {
		if conn.ItemID != "" && c.ItemID == conn.ItemID {
			return nil, models.ErrConflict
		}
	}
	s.connSeq++
	c := *conn
	c.ID = s.connSeq
	c.CreatedAt = now()
	s.connections[c.ID] = c
	return &c, nil
}

func (s *Store) GetConnection(ctx context.Context, userID, connectionID int64) (*models.InstitutionConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[connectionID]
	if !ok || c.UserID != userID {
		return nil, models.NotFound("connection")
	}
	return &c, nil
}

func (s *Store) GetConnectionByItemID(ctx context.Context, itemID string) (*models.InstitutionConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.connections {
		if c.ItemID == itemID {
			return &c, nil
		}
	}
	return nil, models.NotFound("connection")
}

func (s *Store) ListConnections(ctx context.Context, userID int64, institutionID string) ([]models.InstitutionConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.InstitutionConnection{}
	for _, c := range s.connections {
		if c.UserID != userID {
			continue
		}
		if institutionID != "" && c.InstitutionID != institutionID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Cards

func (s *Store) CreateCard(ctx context.Context, p models.CreateCardParams) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ExternalAccountID != nil {
		if _, ok := s.findByExternalAccount(p.UserID, *p.ExternalAccountID); ok {
			return nil, models.ErrConflict
		}
	}
	s.cardSeq++
	ts := now()
	c := models.Card{
		ID:                s.cardSeq,
		UserID:            p.UserID,
		ConnectionID:      p.ConnectionID,
		ExternalAccountID: p.ExternalAccountID,
		Name:              p.Name,
		Issuer:            p.Issuer,
		Last4:             p.Last4,
		BonusAmount:       p.BonusAmount,
		BonusUnit:         p.BonusUnit,
		SpendingRequired:  p.SpendingRequired,
		AggregateSpend:    decimal.Zero,
		Deadline:          p.Deadline,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	s.cards[c.ID] = c
	return &c, nil
}

func (s *Store) GetCard(ctx context.Context, userID, cardID int64) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, models.NotFound("card")
	}
	return &c, nil
}

func (s *Store) findByExternalAccount(userID int64, externalAccountID string) (models.Card, bool) {
	for _, c := range s.cards {
		if c.UserID == userID && c.ExternalAccountID != nil && *c.ExternalAccountID == externalAccountID {
			return c, true
		}
	}
	return models.Card{}, false
}

func (s *Store) FindCardByExternalAccount(ctx context.Context, userID int64, externalAccountID string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.findByExternalAccount(userID, externalAccountID)
	if !ok {
		return nil, models.NotFound("card")
	}
	return &c, nil
}

func (s *Store) AttachCardToConnection(ctx context.Context, userID, cardID, connectionID int64) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, models.NotFound("card")
	}
	if conn, ok := s.connections[connectionID]; !ok || conn.UserID != userID {
		return nil, models.NotFound("connection")
	}
	c.ConnectionID = &connectionID
	c.UpdatedAt = now()
	s.cards[cardID] = c
	return &c, nil
}

func (s *Store) UpdateCard(ctx context.Context, userID, cardID int64, p models.UpdateCardParams) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, models.NotFound("card")
	}
	c.Name = p.Name
	c.Issuer = p.Issuer
	c.Last4 = p.Last4
	c.BonusAmount = p.BonusAmount
	c.BonusUnit = p.BonusUnit
	c.SpendingRequired = p.SpendingRequired
	c.Deadline = p.Deadline
	c.BonusEarned = p.BonusEarned
	c.UpdatedAt = now()
	s.cards[cardID] = c
	return &c, nil
}

func (s *Store) listCards(keep func(models.Card) bool) []models.Card {
	out := []models.Card{}
	for _, c := range s.cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListCards(ctx context.Context, userID int64) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCards(func(c models.Card) bool { return c.UserID == userID }), nil
}

func (s *Store) ListCardsByConnection(ctx context.Context, connectionID int64) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCards(func(c models.Card) bool {
		return c.ConnectionID != nil && *c.ConnectionID == connectionID
	}), nil
}

func (s *Store) ListLinkedCards(ctx context.Context, userID int64) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCards(func(c models.Card) bool {
		return (userID == 0 || c.UserID == userID) && c.IsLinked()
	}), nil
}

func (s *Store) DeleteCard(ctx context.Context, userID, cardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return models.NotFound("card")
	}
	delete(s.cards, cardID)
	for id, t := range s.txns {
		if t.CardID == cardID {
			delete(s.txns, id)
		}
	}
	return nil
}

// Transactions

func (s *Store) GetTransaction(ctx context.Context, userID, transactionID int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[transactionID]
	if !ok {
		return nil, models.NotFound("transaction")
	}
	if c, ok := s.cards[t.CardID]; !ok || c.UserID != userID {
		return nil, models.NotFound("transaction")
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID, cardID int64) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cards[cardID]; !ok || c.UserID != userID {
		return nil, models.NotFound("card")
	}
	out := []models.Transaction{}
	for _, t := range s.txns {
		if t.CardID == cardID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// InCardTx stages all changes on copies and publishes them only when fn succeeds.
func (s *Store) InCardTx(ctx context.Context, userID, cardID int64, fn func(tx services.CardTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return models.NotFound("card")
	}

	tx := &cardTx{card: c, txns: make(map[int64]models.Transaction), seq: s.txnSeq}
	for id, t := range s.txns {
		if t.CardID == cardID {
			tx.txns[id] = t
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, t := range s.txns {
		if t.CardID == cardID {
			delete(s.txns, id)
		}
	}
	for id, t := range tx.txns {
		s.txns[id] = t
	}
	s.cards[cardID] = tx.card
	s.txnSeq = tx.seq
	return nil
}

type cardTx struct {
	card models.Card
	txns map[int64]models.Transaction
	seq  int64
}

func (tx *cardTx) ExternalTokens(ctx context.Context) (map[string]struct{}, error) {
	tokens := make(map[string]struct{}, len(tx.txns))
	for _, t := range tx.txns {
		if t.ExternalToken != nil {
			tokens[*t.ExternalToken] = struct{}{}
		}
	}
	return tokens, nil
}

func (tx *cardTx) InsertTransaction(ctx context.Context, n models.NewTransaction) (*models.Transaction, bool, error) {
	if n.Amount.IsNegative() {
		return nil, false, models.ValidationError("amount", "must not be negative")
	}
	if n.ExternalToken != nil {
		for _, t := range tx.txns {
			if t.ExternalToken != nil && *t.ExternalToken == *n.ExternalToken {
				return nil, false, nil
			}
		}
	}
	tx.seq++
	t := models.Transaction{
		ID:            tx.seq,
		CardID:        tx.card.ID,
		Amount:        n.Amount,
		MerchantName:  n.MerchantName,
		Category:      n.Category,
		Date:          n.Date,
		Pending:       n.Pending,
		Description:   n.Description,
		ExternalToken: n.ExternalToken,
		Source:        n.Source,
		CreatedAt:     now(),
	}
	tx.txns[t.ID] = t
	return &t, true, nil
}

func (tx *cardTx) DeleteTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	t, ok := tx.txns[transactionID]
	if !ok {
		return nil, models.NotFound("transaction")
	}
	delete(tx.txns, transactionID)
	return &t, nil
}

func (tx *cardTx) RecomputeSpend(ctx context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range tx.txns {
		sum = sum.Add(t.Amount)
	}
	tx.card.AggregateSpend = sum
	tx.card.UpdatedAt = now()
	return sum, nil
}
