package chains

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/chainfolio/backend/src/models"
)

func equityOpen(id string, d time.Time, qty, amount float64) models.ClassifiedTransaction {
	return models.ClassifiedTransaction{
		Transaction: models.Transaction{ID: id, Date: d, Symbol: "XYZ", SecurityFamily: models.FamilyEquity, RawType: "Bought", SignedQuantity: qty, Amount: amount},
		Kind:        models.KindOpen,
	}
}

func equityClose(id string, d time.Time, qty, amount float64) models.ClassifiedTransaction {
	return models.ClassifiedTransaction{
		Transaction: models.Transaction{ID: id, Date: d, Symbol: "XYZ", SecurityFamily: models.FamilyEquity, RawType: "Sold", SignedQuantity: -qty, Amount: amount},
		Kind:        models.KindClose,
	}
}

func splitEvent(id string, d time.Time, ratio float64) models.ClassifiedTransaction {
	return models.ClassifiedTransaction{
		Transaction: models.Transaction{ID: id, Date: d, Symbol: "XYZ", SecurityFamily: models.FamilyEquity, RawType: "Split", SignedQuantity: ratio},
		Kind:        models.KindNeutral,
		IsSplit:     true,
	}
}

func TestLotMatcher_FIFOOrder(t *testing.T) {
	d1, d2, d3 := date(2024, 1, 1), date(2024, 1, 5), date(2024, 1, 9)
	matcher := NewLotMatcher()

	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("O1", d1, 10, -100),
		equityOpen("O2", d2, 10, -110),
		equityClose("C", d3, 15, 180),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, "O1", result.Matches[0].OpenTransactionID, "oldest lot must be drained first")
	assert.Equal(t, 10.0, result.Matches[0].QuantityMatched)
	assert.Equal(t, "O2", result.Matches[1].OpenTransactionID)
	assert.Equal(t, 5.0, result.Matches[1].QuantityMatched)

	require.Len(t, result.OpenLots, 1)
	assert.Equal(t, "O2", result.OpenLots[0].OpenTransactionID)
	assert.Equal(t, 5.0, result.OpenLots[0].RemainingQuantity)

	assert.Empty(t, result.UnmatchedCloses)
	// The close spanned two lots and left O2 partially consumed.
	assert.Equal(t, 2, result.SplitTransactions)
}

func TestLotMatcher_RealizedAmountProration(t *testing.T) {
	d1, d2, d3 := date(2024, 2, 1), date(2024, 2, 10), date(2024, 2, 20)
	matcher := NewLotMatcher()

	// Buy 100 @ $10 (-1000), sell 60 (+720), sell 40 (+600).
	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("B", d1, 100, -1000),
		equityClose("S1", d2, 60, 720),
		equityClose("S2", d3, 40, 600),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.InDelta(t, 720-600, result.Matches[0].RealizedAmount, 1e-9)
	assert.InDelta(t, 600-400, result.Matches[1].RealizedAmount, 1e-9)

	total := 0.0
	for _, match := range result.Matches {
		total += match.RealizedAmount
	}
	assert.InDelta(t, 320, total, 1e-9)
	assert.Empty(t, result.OpenLots)
}

func TestLotMatcher_UnmatchedClose(t *testing.T) {
	matcher := NewLotMatcher()

	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("O1", date(2024, 3, 2), 10, -100),
		equityClose("C1", date(2024, 3, 5), 25, 300),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, 10.0, result.Matches[0].QuantityMatched)

	require.Len(t, result.UnmatchedCloses, 1)
	assert.Equal(t, "C1", result.UnmatchedCloses[0].TransactionID)
	assert.Equal(t, 15.0, result.UnmatchedCloses[0].RemainingQuantity)
}

func TestLotMatcher_CloseAgainstEmptyQueue(t *testing.T) {
	matcher := NewLotMatcher()

	// Assignment referencing a lot opened before the ledger's start date.
	result, err := matcher.Match("XYZ", models.FamilyOption, []models.ClassifiedTransaction{
		{
			Transaction: models.Transaction{ID: "A1", Date: date(2024, 4, 1), Symbol: "XYZ", SecurityFamily: models.FamilyOption, RawType: "Option Assigned", SignedQuantity: -2},
			Kind:        models.KindClose,
		},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	require.Len(t, result.UnmatchedCloses, 1)
	assert.Equal(t, 2.0, result.UnmatchedCloses[0].RemainingQuantity)
}

func TestLotMatcher_SplitRescalesOpenLots(t *testing.T) {
	matcher := NewLotMatcher()

	// 100 shares at $10/share, then a 2-for-1 split: 200 shares at $5/share
	// before the close is matched.
	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("B", date(2024, 5, 1), 100, -1000),
		splitEvent("SP", date(2024, 5, 10), 2),
		equityClose("S", date(2024, 5, 20), 200, 1200),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, 200.0, result.Matches[0].QuantityMatched)
	assert.InDelta(t, 200, result.Matches[0].RealizedAmount, 1e-9)
	assert.Empty(t, result.OpenLots)
	assert.Empty(t, result.UnmatchedCloses)
}

func TestLotMatcher_SplitAppliesInStreamOrder(t *testing.T) {
	matcher := NewLotMatcher()

	// The close before the split sees pre-split quantities; the open after
	// the split is never rescaled.
	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("B1", date(2024, 6, 1), 100, -1000),
		equityClose("S1", date(2024, 6, 5), 100, 1100),
		splitEvent("SP", date(2024, 6, 10), 2),
		equityOpen("B2", date(2024, 6, 15), 50, -400),
		equityClose("S2", date(2024, 6, 20), 50, 450),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, 100.0, result.Matches[0].QuantityMatched)
	assert.InDelta(t, 100, result.Matches[0].RealizedAmount, 1e-9)
	assert.Equal(t, 50.0, result.Matches[1].QuantityMatched)
	assert.InDelta(t, 50, result.Matches[1].RealizedAmount, 1e-9)
	assert.Empty(t, result.OpenLots)
}

func TestLotMatcher_SplitWithBadRatioIsSkipped(t *testing.T) {
	matcher := NewLotMatcher()

	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("B", date(2024, 7, 1), 100, -1000),
		splitEvent("SP", date(2024, 7, 5), 0),
	})
	require.NoError(t, err)

	require.Len(t, result.OpenLots, 1)
	assert.Equal(t, 100.0, result.OpenLots[0].RemainingQuantity)
}

func TestLotMatcher_Conservation(t *testing.T) {
	d := date(2024, 8, 1)
	matcher := NewLotMatcher()

	txs := []models.ClassifiedTransaction{
		equityOpen("O1", d, 30, -300),
		equityOpen("O2", d.AddDate(0, 0, 1), 20, -220),
		equityOpen("O3", d.AddDate(0, 0, 2), 10, -120),
		equityClose("C1", d.AddDate(0, 0, 3), 45, 500),
		equityClose("C2", d.AddDate(0, 0, 4), 25, 300),
	}
	result, err := matcher.Match("XYZ", models.FamilyEquity, txs)
	require.NoError(t, err)

	// Per close: matched quantity plus any unmatched remainder equals the
	// close's absolute quantity.
	matchedByClose := make(map[string]float64)
	for _, match := range result.Matches {
		matchedByClose[match.CloseTransactionID] += match.QuantityMatched
	}
	unmatchedByClose := make(map[string]float64)
	for _, u := range result.UnmatchedCloses {
		unmatchedByClose[u.TransactionID] += u.RemainingQuantity
	}
	assert.InDelta(t, 45, matchedByClose["C1"]+unmatchedByClose["C1"], 1e-9)
	assert.InDelta(t, 25, matchedByClose["C2"]+unmatchedByClose["C2"], 1e-9)

	// Per open: matched quantity plus remaining lot quantity equals the
	// open's quantity.
	matchedByOpen := make(map[string]float64)
	for _, match := range result.Matches {
		matchedByOpen[match.OpenTransactionID] += match.QuantityMatched
	}
	remaining := make(map[string]float64)
	for _, lot := range result.OpenLots {
		remaining[lot.OpenTransactionID] = lot.RemainingQuantity
	}
	assert.InDelta(t, 30, matchedByOpen["O1"]+remaining["O1"], 1e-9)
	assert.InDelta(t, 20, matchedByOpen["O2"]+remaining["O2"], 1e-9)
	assert.InDelta(t, 10, matchedByOpen["O3"]+remaining["O3"], 1e-9)
}

func TestLotMatcher_DeterministicTieBreakByID(t *testing.T) {
	d := date(2024, 9, 1)
	matcher := NewLotMatcher()

	// Two opens on the same date: the lower id is the older lot.
	result, err := matcher.Match("XYZ", models.FamilyEquity, []models.ClassifiedTransaction{
		equityOpen("O2", d, 10, -110),
		equityOpen("O1", d, 10, -100),
		equityClose("C", d.AddDate(0, 0, 1), 10, 150),
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "O1", result.Matches[0].OpenTransactionID)
}

func TestLotMatcher_OptionShortRoundTrip(t *testing.T) {
	matcher := NewLotMatcher()

	txs := []models.ClassifiedTransaction{
		{
			Transaction: models.Transaction{ID: "S1", Date: date(2024, 10, 1), Symbol: "XYZ 241115P20", SecurityFamily: models.FamilyOption, RawType: "Sold Short", SignedQuantity: -2, Amount: 300, Strike: 20},
			Kind:        models.KindOpen,
		},
		{
			Transaction: models.Transaction{ID: "E1", Date: date(2024, 11, 15), Symbol: "XYZ 241115P20", SecurityFamily: models.FamilyOption, RawType: "Option Expired", SignedQuantity: 2, Amount: 0, Strike: 20},
			Kind:        models.KindClose,
		},
	}
	result, err := matcher.Match("XYZ 241115P20", models.FamilyOption, txs)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, 2.0, result.Matches[0].QuantityMatched)
	// Expiration has no cash effect, so the realized amount is the premium.
	assert.InDelta(t, 300, result.Matches[0].RealizedAmount, 1e-9)
	assert.Empty(t, result.OpenLots)
}
