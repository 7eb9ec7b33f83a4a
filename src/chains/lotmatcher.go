package chains

import (
	"fmt"
	"sort"

	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/models"
	"github.com/username/chainfolio/backend/src/utils"
)

// MatchResult is everything one symbol's FIFO pass produces.
type MatchResult struct {
	Matches         []models.Match
	OpenLots        []models.Lot // lots with remaining quantity at end of stream
	UnmatchedCloses []models.UnmatchedClose
	// SplitTransactions counts closes that drained more than one lot and
	// opens left partially consumed by a close.
	SplitTransactions int
}

// LotMatcher runs the FIFO match for one (symbol, family) group. It owns the
// group's lot queue for the duration of one call; nothing is shared across
// symbols, which is what makes per-symbol parallelism safe.
type LotMatcher struct{}

func NewLotMatcher() *LotMatcher {
	return &LotMatcher{}
}

// Match consumes the group's classified transactions in (date, id) order and
// pairs every close with the oldest open lots still carrying quantity.
// Neutral split events rescale the queue in stream order, so lots straddling
// the split date are already rescaled when later closes drain them.
func (m *LotMatcher) Match(symbol string, family models.SecurityFamily, txs []models.ClassifiedTransaction) (*MatchResult, error) {
	sorted := make([]models.ClassifiedTransaction, len(txs))
	copy(sorted, txs)
	sortByDateThenID(sorted)

	result := &MatchResult{}
	var queue []*models.Lot
	splitOpens := make(map[string]bool) // opens partially drained at least once

	for i := range sorted {
		tx := &sorted[i]
		switch {
		case tx.IsSplit:
			queue = rescaleLots(queue, tx)
		case tx.Kind == models.KindOpen:
			qty := utils.AbsFloat(tx.SignedQuantity)
			queue = append(queue, &models.Lot{
				OpenTransactionID: tx.ID,
				Symbol:            symbol,
				Family:            family,
				OpenDate:          tx.Date,
				RemainingQuantity: qty,
				OriginalQuantity:  qty,
				OpenAmount:        tx.Amount,
			})
		case tx.Kind == models.KindClose:
			closeQty := utils.AbsFloat(tx.SignedQuantity)
			remaining := closeQty
			lotsDrained := 0

			for remaining > 0 && len(queue) > 0 {
				lot := queue[0]
				matched := utils.MinFloat(remaining, lot.RemainingQuantity)

				// Amounts are signed cash effects, so the realized P&L of a
				// pairing is the sum of both legs' proportional shares.
				closeShare := tx.Amount * (matched / closeQty)
				openShare := 0.0
				if lot.OriginalQuantity != 0 {
					openShare = lot.OpenAmount * (matched / lot.OriginalQuantity)
				}

				result.Matches = append(result.Matches, models.Match{
					CloseTransactionID: tx.ID,
					OpenTransactionID:  lot.OpenTransactionID,
					Symbol:             symbol,
					Family:             family,
					QuantityMatched:    matched,
					RealizedAmount:     closeShare + openShare,
					CloseDate:          tx.Date,
				})

				remaining -= matched
				lot.RemainingQuantity -= matched
				lotsDrained++

				if lot.RemainingQuantity < 0 {
					return nil, fmt.Errorf("lot %s for %s has negative remaining quantity %f", lot.OpenTransactionID, symbol, lot.RemainingQuantity)
				}
				if lot.RemainingQuantity == 0 {
					queue = queue[1:]
				} else {
					// Close exhausted mid-lot: the open is now split
					// across this close and whatever drains it later.
					splitOpens[lot.OpenTransactionID] = true
				}
			}

			if lotsDrained > 1 {
				result.SplitTransactions++
			}
			if remaining > 0 {
				// Common for assignments/expirations referencing lots
				// opened before the ledger starts. Reported, not fatal.
				result.UnmatchedCloses = append(result.UnmatchedCloses, models.UnmatchedClose{
					TransactionID:     tx.ID,
					Symbol:            symbol,
					RemainingQuantity: remaining,
				})
			}
		}
	}

	for _, lot := range queue {
		result.OpenLots = append(result.OpenLots, *lot)
	}
	result.SplitTransactions += len(splitOpens)
	return result, nil
}

// rescaleLots applies a stock split to every lot currently queued: quantity is
// multiplied by the ratio while the open amount is untouched, which divides
// the effective unit cost. The ratio travels in the split row's quantity.
func rescaleLots(queue []*models.Lot, tx *models.ClassifiedTransaction) []*models.Lot {
	ratio := tx.SignedQuantity
	if ratio <= 0 {
		if logger.L != nil {
			logger.L.Warn("Split transaction with non-positive ratio, skipping", "id", tx.ID, "ratio", ratio)
		}
		return queue
	}
	for _, lot := range queue {
		lot.RemainingQuantity *= ratio
		lot.OriginalQuantity *= ratio
	}
	return queue
}

// sortByDateThenID orders a group chronologically, ties broken by id so reruns
// over the same ledger are deterministic.
func sortByDateThenID(txs []models.ClassifiedTransaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Date.Before(txs[j].Date)
	})
}
