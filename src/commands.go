package main

import (
	"bonustrack-server/src/api"
	"bonustrack-server/src/config"
	rootdb "bonustrack-server/src/db"
	"bonustrack-server/src/services"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			router := api.NewRouter(a.services, api.Options{
				JWTSecret:      cfg.JWTSecret,
				AllowedOrigins: cfg.AllowedOrigins,
				IsDemo:         cfg.IsDemo,
				Webhooks:       a.webhooks,
			})
			server := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Println("API server running on port", cfg.Port)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Println("INFO: Shutting down API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = server.Shutdown(shutdownCtx)

			// Webhook syncs outlive their requests and still hold the store.
			log.Println("INFO: Waiting for background syncs")
			a.services.Background.Wait()
			return err
		},
	}
}

func newSyncCommand() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync every linked card from the bank data provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var result *services.BatchResult
			if userID > 0 {
				result, err = a.services.Batch.SyncUser(cmd.Context(), userID)
			} else {
				result, err = a.services.Batch.SyncAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			for _, r := range result.Synced {
				fmt.Fprintf(cmd.OutOrStdout(), "card %d: fetched %d, inserted %d, spend %s\n",
					r.CardID, r.Fetched, r.Inserted, r.AggregateSpend.StringFixed(2))
			}
			for _, f := range result.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "card %d: FAILED %s\n", f.CardID, f.Error)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d of %d cards failed to sync", len(result.Failed), len(result.Failed)+len(result.Synced))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "only sync cards owned by this user id")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != config.BackendPostgres {
				return fmt.Errorf("migrate requires STORE_BACKEND=%s", config.BackendPostgres)
			}

			pool, err := rootdb.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("DB connection failed: %w", err)
			}
			defer pool.Close()

			if err := rootdb.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Println("INFO: Schema applied")
			return nil
		},
	}
}
