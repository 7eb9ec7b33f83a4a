package services

import (
	"context"
	"errors"

	"github.com/username/chainfolio/backend/src/models"
)

var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrRebuildFailed     = errors.New("chain rebuild failed")
	ErrChainNotFound     = errors.New("chain not found")
	ErrNoStatistics      = errors.New("no chain statistics computed yet")
	ErrImportTooLarge    = errors.New("import batch exceeds configured maximum")
)

// ChainService is the engine's surface for the UI layer: one write operation
// (the full rebuild) and read queries served from the last committed snapshot.
type ChainService interface {
	ProcessChains(ctx context.Context) (*models.RebuildResult, error)
	GetChainStatistics() (*models.ChainStatistics, error)
	ListSymbolsWithChains() ([]string, error)
	ListChains(symbol string) ([]models.ChainSummary, error)
	GetChainTransactions(chainID string) ([]models.ChainTransaction, error)

	// Ledger passthrough for the out-of-scope ingestion collaborator.
	ImportTransactions(txs []models.Transaction) (int, error)
	GetTransactions() ([]models.Transaction, error)
}
