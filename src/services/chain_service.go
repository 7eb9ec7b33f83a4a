package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/chainfolio/backend/src/chains"
	"github.com/username/chainfolio/backend/src/database"
	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/models"
	"github.com/username/chainfolio/backend/src/utils"
)

const (
	ckChainStatistics = "res_chain_statistics"
	ckChainSymbols    = "res_chain_symbols"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type chainServiceImpl struct {
	engine      *chains.Engine
	reportCache *cache.Cache

	// rebuildMu serializes full rebuilds; readers keep hitting the last
	// committed snapshot until the replacement transaction commits.
	rebuildMu sync.Mutex

	maxImportBatchSize int
}

func NewChainService(engine *chains.Engine, reportCache *cache.Cache, maxImportBatchSize int) ChainService {
	return &chainServiceImpl{
		engine:             engine,
		reportCache:        reportCache,
		maxImportBatchSize: maxImportBatchSize,
	}
}

func (s *chainServiceImpl) ProcessChains(ctx context.Context) (*models.RebuildResult, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	overallStartTime := time.Now()
	logger.L.Info("ProcessChains START")

	ledger, err := s.GetTransactions()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	result, err := s.engine.Run(ctx, ledger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRebuildFailed, err)
	}

	if err := s.persistRun(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRebuildFailed, err)
	}

	s.reportCache.Delete(ckChainStatistics)
	s.reportCache.Delete(ckChainSymbols)

	logger.L.Info("ProcessChains DONE",
		"runID", result.RunID,
		"chains", len(result.Chains),
		"duration", time.Since(overallStartTime).String())

	return &models.RebuildResult{
		RunID:             result.RunID,
		TotalTransactions: result.Statistics.TotalTransactions,
		EquityChains:      result.Statistics.EquityChains,
		OptionChains:      result.Statistics.OptionChains,
		UnmatchedCloses:   result.Statistics.UnmatchedCloses,
		SplitTransactions: result.Statistics.SplitTransactions,
	}, nil
}

// persistRun replaces the committed chain assignment in one database
// transaction, so a failure mid-write leaves the previous snapshot
// authoritative and readers never observe a half-rebuilt state.
func (s *chainServiceImpl) persistRun(result *chains.Result) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec("DELETE FROM chain_transactions"); err != nil {
		return fmt.Errorf("clearing chain_transactions: %w", err)
	}
	if _, err := dbTx.Exec("DELETE FROM chains"); err != nil {
		return fmt.Errorf("clearing chains: %w", err)
	}

	chainStmt, err := dbTx.Prepare(`
		INSERT INTO chains (chain_id, symbol, security_family, chain_start_date, chain_end_date, total_realized_amount, is_closed, transaction_count, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chain insert: %w", err)
	}
	defer chainStmt.Close()

	memberStmt, err := dbTx.Prepare(`
		INSERT INTO chain_transactions (chain_id, transaction_id, position, role)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chain member insert: %w", err)
	}
	defer memberStmt.Close()

	for _, chain := range result.Chains {
		var endDate interface{}
		if chain.ChainEndDate != nil {
			endDate = utils.FormatDate(*chain.ChainEndDate)
		}
		if _, err := chainStmt.Exec(
			chain.ChainID, chain.Symbol, string(chain.Family),
			utils.FormatDate(chain.ChainStartDate), endDate,
			chain.TotalRealizedAmount, chain.IsClosed, len(chain.TransactionIDs),
			result.RunID,
		); err != nil {
			return fmt.Errorf("inserting chain %s: %w", chain.ChainID, err)
		}
		for position, txID := range chain.TransactionIDs {
			if _, err := memberStmt.Exec(chain.ChainID, txID, position, string(chain.Roles[txID])); err != nil {
				return fmt.Errorf("inserting member %s of chain %s: %w", txID, chain.ChainID, err)
			}
		}
	}

	payload, err := json.Marshal(result.Statistics)
	if err != nil {
		return fmt.Errorf("marshaling statistics: %w", err)
	}
	if _, err := dbTx.Exec(`
		INSERT INTO chain_statistics (id, run_id, payload, computed_at) VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id, payload = excluded.payload, computed_at = excluded.computed_at`,
		result.RunID, string(payload)); err != nil {
		return fmt.Errorf("storing statistics: %w", err)
	}

	return dbTx.Commit()
}

func (s *chainServiceImpl) GetChainStatistics() (*models.ChainStatistics, error) {
	if cached, found := s.reportCache.Get(ckChainStatistics); found {
		if stats, ok := cached.(*models.ChainStatistics); ok {
			return stats, nil
		}
	}

	var payload string
	err := database.DB.QueryRow("SELECT payload FROM chain_statistics WHERE id = 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNoStatistics
	}
	if err != nil {
		return nil, fmt.Errorf("querying chain statistics: %w", err)
	}

	var stats models.ChainStatistics
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return nil, fmt.Errorf("decoding chain statistics: %w", err)
	}

	s.reportCache.Set(ckChainStatistics, &stats, cache.DefaultExpiration)
	return &stats, nil
}

func (s *chainServiceImpl) ListSymbolsWithChains() ([]string, error) {
	if cached, found := s.reportCache.Get(ckChainSymbols); found {
		if symbols, ok := cached.([]string); ok {
			return symbols, nil
		}
	}

	rows, err := database.DB.Query("SELECT DISTINCT symbol FROM chains ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("querying chain symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scanning chain symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chain symbols: %w", err)
	}

	s.reportCache.Set(ckChainSymbols, symbols, cache.DefaultExpiration)
	return symbols, nil
}

func (s *chainServiceImpl) ListChains(symbol string) ([]models.ChainSummary, error) {
	rows, err := database.DB.Query(`
		SELECT chain_id, symbol, security_family, chain_start_date, chain_end_date, total_realized_amount, is_closed, transaction_count
		FROM chains
		WHERE symbol = ?
		ORDER BY chain_start_date, chain_id`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying chains for %s: %w", symbol, err)
	}
	defer rows.Close()

	var summaries []models.ChainSummary
	for rows.Next() {
		var summary models.ChainSummary
		var family string
		var endDate sql.NullString
		if err := rows.Scan(&summary.ChainID, &summary.Symbol, &family, &summary.ChainStartDate,
			&endDate, &summary.TotalRealizedAmount, &summary.IsClosed, &summary.TransactionCount); err != nil {
			return nil, fmt.Errorf("scanning chain summary: %w", err)
		}
		summary.Family = models.SecurityFamily(family)
		if endDate.Valid {
			end := endDate.String
			summary.ChainEndDate = &end
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chain summaries: %w", err)
	}
	return summaries, nil
}

func (s *chainServiceImpl) GetChainTransactions(chainID string) ([]models.ChainTransaction, error) {
	rows, err := database.DB.Query(`
		SELECT t.id, t.date, t.symbol, t.security_family, t.raw_type, t.signed_quantity, t.amount, COALESCE(t.strike, 0), ct.role
		FROM chain_transactions ct
		JOIN transactions t ON t.id = ct.transaction_id
		WHERE ct.chain_id = ?
		ORDER BY ct.position`, chainID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for chain %s: %w", chainID, err)
	}
	defer rows.Close()

	var txs []models.ChainTransaction
	for rows.Next() {
		var tx models.ChainTransaction
		var date, family, role string
		if err := rows.Scan(&tx.ID, &date, &tx.Symbol, &family, &tx.RawType,
			&tx.SignedQuantity, &tx.Amount, &tx.Strike, &role); err != nil {
			return nil, fmt.Errorf("scanning chain transaction: %w", err)
		}
		tx.Date = utils.ParseDate(date)
		tx.SecurityFamily = models.SecurityFamily(family)
		tx.Role = models.TransactionRole(role)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chain transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, ErrChainNotFound
	}
	return txs, nil
}

func (s *chainServiceImpl) ImportTransactions(txs []models.Transaction) (int, error) {
	if s.maxImportBatchSize > 0 && len(txs) > s.maxImportBatchSize {
		return 0, ErrImportTooLarge
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT OR IGNORE INTO transactions (id, date, symbol, security_family, raw_type, signed_quantity, amount, strike)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing transaction insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		res, err := stmt.Exec(tx.ID, utils.FormatDate(tx.Date), tx.Symbol, string(tx.SecurityFamily),
			tx.RawType, tx.SignedQuantity, tx.Amount, tx.Strike)
		if err != nil {
			return 0, fmt.Errorf("inserting transaction %s: %w", tx.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			inserted++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return inserted, nil
}

func (s *chainServiceImpl) GetTransactions() ([]models.Transaction, error) {
	rows, err := database.DB.Query(`
		SELECT id, date, symbol, security_family, raw_type, signed_quantity, amount, COALESCE(strike, 0)
		FROM transactions
		ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var date, family string
		if err := rows.Scan(&tx.ID, &date, &tx.Symbol, &family, &tx.RawType,
			&tx.SignedQuantity, &tx.Amount, &tx.Strike); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.Date = utils.ParseDate(date)
		tx.SecurityFamily = models.SecurityFamily(family)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}
