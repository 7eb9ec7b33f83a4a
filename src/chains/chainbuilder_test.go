package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/chainfolio/backend/src/models"
)

func buildFor(t *testing.T, txs []models.ClassifiedTransaction) []models.Chain {
	t.Helper()
	matcher := NewLotMatcher()
	result, err := matcher.Match("XYZ", models.FamilyEquity, txs)
	require.NoError(t, err)
	return NewChainBuilder().Build("XYZ", models.FamilyEquity, txs, result)
}

func TestChainBuilder_SingleClosedRoundTrip(t *testing.T) {
	d1, d2, d3 := date(2024, 1, 1), date(2024, 1, 10), date(2024, 1, 20)

	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("B", d1, 100, -1000),
		equityClose("S1", d2, 60, 720),
		equityClose("S2", d3, 40, 600),
	})

	require.Len(t, chains, 1)
	chain := chains[0]
	assert.Equal(t, "B", chain.ChainID)
	assert.True(t, chain.IsClosed)
	assert.Equal(t, d1, chain.ChainStartDate)
	require.NotNil(t, chain.ChainEndDate)
	assert.Equal(t, d3, *chain.ChainEndDate)
	assert.InDelta(t, 320, chain.TotalRealizedAmount, 1e-9)
	assert.Equal(t, []string{"B", "S1", "S2"}, chain.TransactionIDs)

	assert.Equal(t, models.RoleOpening, chain.Roles["B"])
	assert.Equal(t, models.RoleIntermediate, chain.Roles["S1"])
	assert.Equal(t, models.RoleClosing, chain.Roles["S2"])
}

func TestChainBuilder_LoneOpenStaysOpen(t *testing.T) {
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("B", date(2024, 2, 1), 100, -1000),
	})

	require.Len(t, chains, 1)
	assert.False(t, chains[0].IsClosed)
	assert.Nil(t, chains[0].ChainEndDate)
	assert.Equal(t, "B", chains[0].ChainID)
	assert.Zero(t, chains[0].TotalRealizedAmount)
}

func TestChainBuilder_PartialCloseLeavesChainOpen(t *testing.T) {
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("B", date(2024, 3, 1), 100, -1000),
		equityClose("S", date(2024, 3, 10), 40, 480),
	})

	require.Len(t, chains, 1)
	chain := chains[0]
	assert.False(t, chain.IsClosed)
	assert.Nil(t, chain.ChainEndDate)
	assert.Equal(t, []string{"B", "S"}, chain.TransactionIDs)
	// No closing role until the chain actually closes.
	assert.Equal(t, models.RoleIntermediate, chain.Roles["S"])
	assert.InDelta(t, 480-400, chain.TotalRealizedAmount, 1e-9)
}

func TestChainBuilder_LaterOpenStartsNewChain(t *testing.T) {
	// A closed round trip followed by an unrelated open: the closed chain
	// must not be reopened retroactively.
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("B1", date(2024, 4, 1), 10, -100),
		equityClose("S1", date(2024, 4, 5), 10, 120),
		equityOpen("B2", date(2024, 4, 10), 10, -110),
	})

	require.Len(t, chains, 2)
	assert.Equal(t, "B1", chains[0].ChainID)
	assert.True(t, chains[0].IsClosed)
	assert.Equal(t, "B2", chains[1].ChainID)
	assert.False(t, chains[1].IsClosed)
}

func TestChainBuilder_CloseSpanningOpensMergesChains(t *testing.T) {
	// One close drawing from both opens links them into one chain.
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("O1", date(2024, 5, 1), 10, -100),
		equityOpen("O2", date(2024, 5, 2), 10, -110),
		equityClose("C", date(2024, 5, 9), 20, 260),
	})

	require.Len(t, chains, 1)
	chain := chains[0]
	assert.Equal(t, "O1", chain.ChainID)
	assert.True(t, chain.IsClosed)
	assert.Equal(t, []string{"O1", "O2", "C"}, chain.TransactionIDs)
	assert.InDelta(t, 50, chain.TotalRealizedAmount, 1e-9)
}

func TestChainBuilder_IndependentRoundTripsStaySeparate(t *testing.T) {
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("O1", date(2024, 6, 1), 10, -100),
		equityClose("C1", date(2024, 6, 5), 10, 130),
		equityOpen("O2", date(2024, 6, 10), 5, -60),
		equityClose("C2", date(2024, 6, 15), 5, 75),
	})

	require.Len(t, chains, 2)
	assert.Equal(t, "O1", chains[0].ChainID)
	assert.Equal(t, "O2", chains[1].ChainID)
	assert.InDelta(t, 30, chains[0].TotalRealizedAmount, 1e-9)
	assert.InDelta(t, 15, chains[1].TotalRealizedAmount, 1e-9)
}

func TestChainBuilder_UnmatchedCloseFormsNoChain(t *testing.T) {
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityClose("C", date(2024, 7, 1), 10, 100),
	})
	assert.Empty(t, chains)
}

func TestChainBuilder_TransactionIDsUniqueAcrossChains(t *testing.T) {
	chains := buildFor(t, []models.ClassifiedTransaction{
		equityOpen("O1", date(2024, 8, 1), 10, -100),
		equityClose("C1", date(2024, 8, 5), 10, 120),
		equityOpen("O2", date(2024, 8, 10), 10, -105),
		equityClose("C2", date(2024, 8, 15), 10, 115),
	})

	seen := make(map[string]int)
	for _, chain := range chains {
		for _, id := range chain.TransactionIDs {
			seen[id]++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "transaction %s appears in more than one chain", id)
	}
}
