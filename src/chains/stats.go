package chains

import "github.com/username/chainfolio/backend/src/models"

// StatsAggregator folds a completed run into the summary counters the
// dashboard displays. Pure counting, recomputed every run.
type StatsAggregator struct{}

func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

func (a *StatsAggregator) Aggregate(ledger []models.Transaction, classified []models.ClassifiedTransaction, chains []models.Chain, unmatched []models.UnmatchedClose, splitTransactions, skipped int) models.ChainStatistics {
	stats := models.ChainStatistics{
		TotalTransactions:   len(ledger),
		TotalChains:         len(chains),
		UnmatchedCloses:     len(unmatched),
		SplitTransactions:   splitTransactions,
		SkippedTransactions: skipped,
	}

	for _, tx := range classified {
		if tx.Kind == models.KindNeutral {
			stats.NeutralTransactions++
		}
	}

	for _, chain := range chains {
		if chain.IsClosed {
			stats.ClosedChains++
		}
		stats.ChainedTransactions += len(chain.TransactionIDs)
		switch chain.Family {
		case models.FamilyEquity:
			stats.EquityChains++
			stats.EquityChainTransactions += len(chain.TransactionIDs)
		case models.FamilyOption:
			stats.OptionChains++
			stats.OptionChainTransactions += len(chain.TransactionIDs)
		}
	}

	return stats
}
