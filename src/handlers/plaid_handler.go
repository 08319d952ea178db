package handlers

import (
	"bonustrack-server/src/services"
	"bonustrack-server/src/util"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	maxWebhookBody         = 1 << 20
	webhookTypeTransaction = "TRANSACTIONS"
)

func CreateLinkToken(links *services.LinkSessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		linkToken, err := links.CreateSession(r.Context(), userID)
		if err != nil {
			log.Printf("ERROR: Plaid link token creation failed for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"link_token": linkToken})
	}
}

func ExchangePublicToken(links *services.LinkSessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode exchange public token request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		result, err := links.CompleteSession(r.Context(), userID, req.PublicToken)
		if err != nil {
			log.Printf("ERROR: Plaid public token exchange failed for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		log.Printf("INFO: User %d linked %s (connection %d, %d prior)", userID, result.InstitutionName, result.ConnectionID, result.PriorConnectionCount)
		writeJSON(w, http.StatusCreated, result)
	}
}

func ListConnections(links *services.LinkSessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		connections, err := links.ListConnections(r.Context(), userID, r.URL.Query().Get("institution_id"))
		if err != nil {
			log.Printf("ERROR: Failed to list connections for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, connections)
	}
}

func FinalizeAccounts(linker *services.AccountLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		connectionID, err := pathID(r, "connection_id")
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			Accounts      []services.AccountSelection `json:"accounts"`
			NewAccountIDs []string                    `json:"new_account_ids"`
			Deadline      string                      `json:"deadline"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode finalize accounts request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		in := services.FinalizeInput{
			ConnectionID:  connectionID,
			Accounts:      req.Accounts,
			NewAccountIDs: req.NewAccountIDs,
		}
		if strings.TrimSpace(req.Deadline) != "" {
			deadline, err := util.ParseDate("deadline", req.Deadline)
			if err != nil {
				writeError(w, err)
				return
			}
			in.Deadline = &deadline
		}

		result, err := linker.Finalize(r.Context(), userID, in)
		if err != nil {
			log.Printf("ERROR: Failed to finalize accounts for connection %d, user %d: %v", connectionID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// PlaidWebhook acknowledges immediately; transaction webhooks sync the item's
// cards in the background, tracked by background so shutdown can wait for
// them. verifier may be nil when verification is disabled.
func PlaidWebhook(batch *services.BatchSyncer, verifier *util.WebhookVerifier, background *sync.WaitGroup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			log.Printf("ERROR: Failed to read webhook body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if verifier != nil {
			if err := verifier.Verify(r.Context(), body, r.Header.Get("Plaid-Verification")); err != nil {
				log.Printf("WARN: Rejected webhook: %v", err)
				http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
				return
			}
		}

		var payload struct {
			WebhookType string `json:"webhook_type"`
			WebhookCode string `json:"webhook_code"`
			ItemID      string `json:"item_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			log.Printf("ERROR: Failed to decode webhook body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		log.Printf("INFO: Webhook %s/%s for item %s", payload.WebhookType, payload.WebhookCode, payload.ItemID)

		if payload.WebhookType == webhookTypeTransaction && payload.ItemID != "" {
			ctx := context.WithoutCancel(r.Context())
			background.Add(1)
			go func(itemID string) {
				defer background.Done()
				started := time.Now()
				result, err := batch.SyncConnection(ctx, itemID)
				if err != nil {
					log.Printf("ERROR: Webhook sync failed for item %s: %v", itemID, err)
					return
				}
				log.Printf("INFO: Webhook sync for item %s: %d synced, %d failed in %s", itemID, len(result.Synced), len(result.Failed), time.Since(started))
			}(payload.ItemID)
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}
