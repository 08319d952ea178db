package handlers

import (
	"bonustrack-server/src/services"
	"encoding/json"
	"log"
	"net/http"
)

func GetCards(ledger *services.SpendLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		cards, err := ledger.ListCards(r.Context(), userID)
		if err != nil {
			log.Printf("ERROR: Failed to list cards for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, cards)
	}
}

func GetCard(ledger *services.SpendLedger) http.HandlerFunc {
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

		card, err := ledger.GetCard(r.Context(), userID, cardID)
		if err != nil {
			log.Printf("ERROR: Failed to get card %d for user %d: %v", cardID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, card)
	}
}

func CreateCard(ledger *services.SpendLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		var req struct {
			Name             string      `json:"name"`
			Issuer           string      `json:"issuer"`
			Last4            string      `json:"last4"`
			BonusAmount      int64       `json:"bonus_amount"`
			BonusUnit        string      `json:"bonus_unit"`
			SpendingRequired json.Number `json:"spending_required"`
			Deadline         string      `json:"deadline"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode create card request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		card, err := ledger.CreateCard(r.Context(), userID, services.CreateCardInput{
			Name:             req.Name,
			Issuer:           req.Issuer,
			Last4:            req.Last4,
			BonusAmount:      req.BonusAmount,
			BonusUnit:        req.BonusUnit,
			SpendingRequired: req.SpendingRequired.String(),
			Deadline:         req.Deadline,
		})
		if err != nil {
			log.Printf("ERROR: Failed to create card for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, card)
	}
}

func UpdateCard(ledger *services.SpendLedger) http.HandlerFunc {
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

		var req struct {
			Name             string      `json:"name"`
			Issuer           string      `json:"issuer"`
			Last4            string      `json:"last4"`
			BonusAmount      int64       `json:"bonus_amount"`
			BonusUnit        string      `json:"bonus_unit"`
			SpendingRequired json.Number `json:"spending_required"`
			Deadline         string      `json:"deadline"`
			BonusEarned      bool        `json:"bonus_earned"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("ERROR: Failed to decode update card request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		card, err := ledger.UpdateCard(r.Context(), userID, cardID, services.UpdateCardInput{
			CreateCardInput: services.CreateCardInput{
				Name:             req.Name,
				Issuer:           req.Issuer,
				Last4:            req.Last4,
				BonusAmount:      req.BonusAmount,
				BonusUnit:        req.BonusUnit,
				SpendingRequired: req.SpendingRequired.String(),
				Deadline:         req.Deadline,
			},
			BonusEarned: req.BonusEarned,
		})
		if err != nil {
			log.Printf("ERROR: Failed to update card %d for user %d: %v", cardID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, card)
	}
}

func DeleteCard(ledger *services.SpendLedger) http.HandlerFunc {
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

		if err := ledger.DeleteCard(r.Context(), userID, cardID); err != nil {
			log.Printf("ERROR: Failed to delete card %d for user %d: %v", cardID, userID, err)
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func SyncCard(syncer *services.Synchronizer) http.HandlerFunc {
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

		result, err := syncer.SyncCard(r.Context(), userID, cardID)
		if err != nil {
			log.Printf("ERROR: Failed to sync card %d for user %d: %v", cardID, userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func SyncAllCards(batch *services.BatchSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}

		result, err := batch.SyncUser(r.Context(), userID)
		if err != nil {
			log.Printf("ERROR: Failed to sync cards for user %d: %v", userID, err)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
