package main

import (
	"bonustrack-server/src/api"
	"bonustrack-server/src/config"
	rootdb "bonustrack-server/src/db"
	"bonustrack-server/src/db/memory"
	sqldb "bonustrack-server/src/db/sql"
	"bonustrack-server/src/plaid"
	"bonustrack-server/src/services"
	"bonustrack-server/src/util"
	"context"
	"fmt"
	"log"
)

// app holds everything a command needs. close releases the pool and caches.
type app struct {
	cfg      config.Config
	services *api.Services
	webhooks *util.WebhookVerifier
	close    func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := rootdb.NewCache()
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	plaidClient, err := plaid.NewPlaidClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)
	if err != nil {
		cache.Close()
		closeStore()
		return nil, err
	}
	aggregator := plaid.NewAggregator(plaidClient, cfg.PlaidClientName, cfg.PlaidWebhookURL, cfg.AggregatorTimeout)

	a := &app{
		cfg:      cfg,
		services: api.NewServices(store, aggregator, cache.InstitutionNames(), cfg.SyncWorkers),
		close: func() {
			cache.Close()
			closeStore()
		},
	}
	if cfg.VerifyWebhooks {
		a.webhooks = util.NewWebhookVerifier(aggregator.WebhookKey, cache)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (services.Store, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Println("INFO: Using in-memory store, data will not survive a restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := rootdb.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("DB connection failed: %w", err)
	}
	return sqldb.NewStore(pool), pool.Close, nil
}
