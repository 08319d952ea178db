package api

import (
	"bonustrack-server/src/handlers"
	"bonustrack-server/src/middleware"
	"bonustrack-server/src/services"
	"bonustrack-server/src/util"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Services bundles the engine components the routes call into.
type Services struct {
	Users  services.UserRepository
	Links  *services.LinkSessionManager
	Linker *services.AccountLinker
	Syncer *services.Synchronizer
	Batch  *services.BatchSyncer
	Ledger *services.SpendLedger

	// Background tracks webhook-triggered syncs still running.
	Background sync.WaitGroup
}

// NewServices wires the engine over one store and one aggregator. names may be nil.
func NewServices(store services.Store, aggregator services.Aggregator, names services.NameCache, syncWorkers int) *Services {
	syncer := services.NewSynchronizer(aggregator, store)
	return &Services{
		Users:  store,
		Links:  services.NewLinkSessionManager(aggregator, store, names),
		Linker: services.NewAccountLinker(store, syncer),
		Syncer: syncer,
		Batch:  services.NewBatchSyncer(syncer, store, syncWorkers),
		Ledger: services.NewSpendLedger(store, store),
	}
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	IsDemo         bool
	// Webhooks verifies aggregator webhooks; nil accepts them unverified.
	Webhooks *util.WebhookVerifier
}

func NewRouter(svc *Services, opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	r.Use(middleware.DemoModeMiddleware(opts.IsDemo))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", handlers.Login(svc.Users, opts.JWTSecret))
		r.Post("/register", handlers.Register(svc.Users, opts.JWTSecret))
		r.Post("/plaid/webhook", handlers.PlaidWebhook(svc.Batch, opts.Webhooks, &svc.Background))

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(opts.JWTSecret)).Group(func(r chi.Router) {
			// Plaid
			r.Post("/plaid/link-token", handlers.CreateLinkToken(svc.Links))
			r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(svc.Links))
			r.Get("/plaid/connections", handlers.ListConnections(svc.Links))
			r.Post("/plaid/connections/{connection_id}/cards", handlers.FinalizeAccounts(svc.Linker))

			// Cards
			r.Get("/cards", handlers.GetCards(svc.Ledger))
			r.Post("/cards", handlers.CreateCard(svc.Ledger))
			r.Post("/cards/sync", handlers.SyncAllCards(svc.Batch))
			r.Get("/cards/{card_id}", handlers.GetCard(svc.Ledger))
			r.Put("/cards/{card_id}", handlers.UpdateCard(svc.Ledger))
			r.Delete("/cards/{card_id}", handlers.DeleteCard(svc.Ledger))
			r.Post("/cards/{card_id}/sync", handlers.SyncCard(svc.Syncer))
			r.Get("/cards/{card_id}/transactions", handlers.GetTransactions(svc.Ledger))

			// Transactions
			r.Post("/transactions", handlers.CreateTransaction(svc.Ledger))
			r.Delete("/transactions/{transaction_id}", handlers.DeleteTransaction(svc.Ledger))
		})
	})

	return r
}
