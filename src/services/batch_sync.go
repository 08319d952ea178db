package services

import (
	"bonustrack-server/src/models"
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultSyncWorkers = 4

// BatchSyncer syncs many cards with bounded concurrency. A failing card is
// reported in the result and never stops the others.
type BatchSyncer struct {
	sync        *Synchronizer
	cards       CardRepository
	connections ConnectionRepository
	workers     int
}

func NewBatchSyncer(sync *Synchronizer, store Store, workers int) *BatchSyncer {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	return &BatchSyncer{sync: sync, cards: store, connections: store, workers: workers}
}

type SyncFailure struct {
	CardID int64  `json:"card_id"`
	Error  string `json:"error"`
}

type BatchResult struct {
	Synced []SyncResult  `json:"synced"`
	Failed []SyncFailure `json:"failed"`
}

func (b *BatchSyncer) SyncUser(ctx context.Context, userID int64) (*BatchResult, error) {
	cards, err := b.cards.ListLinkedCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list linked cards for user %d: %w", userID, err)
	}
	return b.syncCards(ctx, cards), nil
}

func (b *BatchSyncer) SyncAll(ctx context.Context) (*BatchResult, error) {
	cards, err := b.cards.ListLinkedCards(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list linked cards: %w", err)
	}
	return b.syncCards(ctx, cards), nil
}

// SyncConnection syncs the cards attached to the connection holding itemID.
func (b *BatchSyncer) SyncConnection(ctx context.Context, itemID string) (*BatchResult, error) {
	conn, err := b.connections.GetConnectionByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cards, err := b.cards.ListCardsByConnection(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("list cards for connection %d: %w", conn.ID, err)
	}
	linked := cards[:0]
	for _, c := range cards {
		if c.IsLinked() {
			linked = append(linked, c)
		}
	}
	return b.syncCards(ctx, linked), nil
}

func (b *BatchSyncer) syncCards(ctx context.Context, cards []models.Card) *BatchResult {
	result := &BatchResult{Synced: []SyncResult{}, Failed: []SyncFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range cards {
		card := cards[i]
		g.Go(func() error {
			res, err := b.sync.Sync(ctx, &card)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("ERROR: Batch sync failed for card %d: %v", card.ID, err)
				result.Failed = append(result.Failed, SyncFailure{CardID: card.ID, Error: err.Error()})
				return nil
			}
			result.Synced = append(result.Synced, *res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Synced, func(i, j int) bool { return result.Synced[i].CardID < result.Synced[j].CardID })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].CardID < result.Failed[j].CardID })
	log.Printf("INFO: Batch sync finished: %d synced, %d failed", len(result.Synced), len(result.Failed))
	return result
}
