package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/models"
	"github.com/username/chainfolio/backend/src/services"
	"github.com/username/chainfolio/backend/src/utils"
)

type TransactionHandler struct {
	chainService services.ChainService
}

func NewTransactionHandler(chainService services.ChainService) *TransactionHandler {
	return &TransactionHandler{chainService: chainService}
}

// HandleGetTransactions is a thin passthrough over the materialized ledger.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.chainService.GetTransactions()
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error querying transactions: %v", err), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// HandleImportTransactions bulk-seeds the ledger from a JSON array. CSV
// parsing stays with the ingestion collaborator; this accepts already
// materialized rows. Duplicate ids are ignored, which keeps re-imports of a
// growing ledger idempotent.
func (h *TransactionHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	var txs []models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid transaction payload: %v", err), http.StatusBadRequest)
		return
	}

	inserted, err := h.chainService.ImportTransactions(txs)
	if err != nil {
		if errors.Is(err, services.ErrImportTooLarge) {
			utils.SendJSONError(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("error importing transactions: %v", err), http.StatusInternalServerError)
		return
	}

	logger.L.Info("Imported ledger transactions", "received", len(txs), "inserted", inserted)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"received": len(txs), "inserted": inserted})
}
