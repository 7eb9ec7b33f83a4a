package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/services"
	"github.com/username/chainfolio/backend/src/utils"
)

type ChainHandler struct {
	chainService services.ChainService
}

func NewChainHandler(chainService services.ChainService) *ChainHandler {
	return &ChainHandler{chainService: chainService}
}

// HandleProcessChains triggers a full rebuild of the chain assignment.
func (h *ChainHandler) HandleProcessChains(w http.ResponseWriter, r *http.Request) {
	logger.L.Info("Handling ProcessChains request")

	result, err := h.chainService.ProcessChains(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrLedgerUnavailable) {
			utils.SendJSONError(w, fmt.Sprintf("ledger unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("chain rebuild failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleGetChainStatistics serves the last committed run's statistics, with an
// ETag so unchanged stats short-circuit to 304.
func (h *ChainHandler) HandleGetChainStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chainService.GetChainStatistics()
	if err != nil {
		if errors.Is(err, services.ErrNoStatistics) {
			utils.SendJSONError(w, "no chain statistics available, run a rebuild first", http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("error retrieving chain statistics: %v", err), http.StatusInternalServerError)
		return
	}

	etag, err := utils.GenerateETag(stats)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *ChainHandler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.chainService.ListSymbolsWithChains()
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error retrieving chain symbols: %v", err), http.StatusInternalServerError)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(symbols)
}

func (h *ChainHandler) HandleListChains(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		utils.SendJSONError(w, "query parameter 'symbol' is required", http.StatusBadRequest)
		return
	}

	summaries, err := h.chainService.ListChains(symbol)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error retrieving chains for %s: %v", symbol, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (h *ChainHandler) HandleGetChainTransactions(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chainID")
	if chainID == "" {
		utils.SendJSONError(w, "path parameter 'chainID' is required", http.StatusBadRequest)
		return
	}

	txs, err := h.chainService.GetChainTransactions(chainID)
	if err != nil {
		if errors.Is(err, services.ErrChainNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("chain %s not found", chainID), http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("error retrieving transactions for chain %s: %v", chainID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}
