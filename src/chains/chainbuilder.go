package chains

import (
	"sort"
	"time"

	"github.com/username/chainfolio/backend/src/models"
)

// ChainBuilder groups match records into Chain aggregates: transactions that
// share at least one Match form a connected component, and each component is
// one round-trip chain. Opens that never matched anything stand alone as
// still-open single-transaction chains. Unmatched closes never form chains.
type ChainBuilder struct{}

func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// Build assembles the chains for one (symbol, family) group from its match
// result and the group's classified transactions.
func (b *ChainBuilder) Build(symbol string, family models.SecurityFamily, txs []models.ClassifiedTransaction, result *MatchResult) []models.Chain {
	byID := make(map[string]models.ClassifiedTransaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}

	uf := newUnionFind()
	for _, match := range result.Matches {
		uf.union(match.OpenTransactionID, match.CloseTransactionID)
	}

	openRemaining := make(map[string]float64)
	for _, lot := range result.OpenLots {
		openRemaining[lot.OpenTransactionID] = lot.RemainingQuantity
		// An open that never matched still starts its own chain.
		uf.find(lot.OpenTransactionID)
	}

	components := make(map[string][]string)
	for id := range uf.parent {
		root := uf.find(id)
		components[root] = append(components[root], id)
	}

	realizedByRoot := make(map[string]float64)
	for _, match := range result.Matches {
		realizedByRoot[uf.find(match.OpenTransactionID)] += match.RealizedAmount
	}

	var chains []models.Chain
	for root, ids := range components {
		sort.Slice(ids, func(i, j int) bool {
			ti, tj := byID[ids[i]], byID[ids[j]]
			if ti.Date.Equal(tj.Date) {
				return ti.ID < tj.ID
			}
			return ti.Date.Before(tj.Date)
		})

		chain := models.Chain{
			Symbol:              symbol,
			Family:              family,
			TransactionIDs:      ids,
			Roles:               make(map[string]models.TransactionRole, len(ids)),
			TotalRealizedAmount: realizedByRoot[root],
			IsClosed:            true,
		}

		var lastCloseID string
		var lastCloseDate time.Time
		for _, id := range ids {
			tx := byID[id]
			switch tx.Kind {
			case models.KindOpen:
				if chain.ChainID == "" {
					// ids are (date, id) sorted, so the first open is the
					// earliest one: a stable chain id across reruns.
					chain.ChainID = tx.ID
					chain.ChainStartDate = tx.Date
				}
				chain.Roles[id] = models.RoleOpening
				if openRemaining[id] > 0 {
					chain.IsClosed = false
				}
			case models.KindClose:
				chain.Roles[id] = models.RoleIntermediate
				lastCloseID = id
				lastCloseDate = tx.Date
			}
		}

		if chain.IsClosed && lastCloseID != "" {
			endDate := lastCloseDate
			chain.ChainEndDate = &endDate
			chain.Roles[lastCloseID] = models.RoleClosing
		}
		chains = append(chains, chain)
	}

	sort.Slice(chains, func(i, j int) bool {
		if chains[i].ChainStartDate.Equal(chains[j].ChainStartDate) {
			return chains[i].ChainID < chains[j].ChainID
		}
		return chains[i].ChainStartDate.Before(chains[j].ChainStartDate)
	})
	return chains
}

// unionFind is a plain disjoint-set over transaction ids with path halving.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(id string) string {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b string) {
	rootA, rootB := u.find(a), u.find(b)
	if rootA != rootB {
		u.parent[rootB] = rootA
	}
}
