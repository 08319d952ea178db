package handlers

import (
	"bonustrack-server/src/services"
	"encoding/json"
	"log"
	"net/http"
)

type createTransactionRequest struct {
	CardID       int64       `json:"card_id"`
	Amount       json.Number `json:"amount"`
	MerchantName string      `json:"merchant_name"`
	Category     string      `json:"category"`
	Date         string      `json:"date"`
	Pending      bool        `json:"pending"`
	Description  *string     `json:"description"`
}

func CreateTransaction(ledger *services.SpendLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		var req createTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode create transaction request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		result, err := ledger.AddTransaction(r.Context(), userID, services.AddTransactionInput{
			CardID:       req.CardID,
			Amount:       req.Amount.String(),
			MerchantName: req.MerchantName,
			Category:     req.Category,
			Date:         req.Date,
			Pending:      req.Pending,
			Description:  req.Description,
		})
		if err != nil {
			log.Printf("ERROR: Failed to add transaction to card %d for user %d: %v", req.CardID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func DeleteTransaction(ledger *services.SpendLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		transactionID, err := pathID(r, "transaction_id")
		if err != nil {
			writeError(w, err)
			return
		}

		result, err := ledger.DeleteTransaction(r.Context(), userID, transactionID)
		if err != nil {
			log.Printf("ERROR: Failed to delete transaction %d for user %d: %v", transactionID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func GetTransactions(ledger *services.SpendLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		cardID, err := pathID(r, "card_id")
		if err != nil {
			writeError(w, err)
			return
		}

		txns, err := ledger.ListTransactions(r.Context(), userID, cardID)
		if err != nil {
			log.Printf("ERROR: Failed to list transactions for card %d, user %d: %v", cardID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, txns)
	}
}
