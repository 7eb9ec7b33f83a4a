package chains

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/models"
)

// Result is the complete output of one engine run: the batch transform
// ledger -> (chains, statistics). The engine keeps no state between runs.
type Result struct {
	RunID           string
	Chains          []models.Chain
	Matches         []models.Match
	UnmatchedCloses []models.UnmatchedClose
	Statistics      models.ChainStatistics
}

// Engine wires the classifier, per-symbol matchers, chain builder and stats
// aggregator into one batch pipeline. Symbol groups are matched on a bounded
// worker pool since they share no state.
type Engine struct {
	classifier *Classifier
	matcher    *LotMatcher
	builder    *ChainBuilder
	stats      *StatsAggregator
	workers    int
}

func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		classifier: NewClassifier(),
		matcher:    NewLotMatcher(),
		builder:    NewChainBuilder(),
		stats:      NewStatsAggregator(),
		workers:    workers,
	}
}

type groupKey struct {
	Symbol string
	Family models.SecurityFamily
}

type groupOutcome struct {
	result *MatchResult
	chains []models.Chain
	err    error
}

// Run executes one full rebuild over the ledger. The output is deterministic
// for a given ledger regardless of worker interleaving: group results are
// keyed and folded in sorted group order.
func (e *Engine) Run(ctx context.Context, ledger []models.Transaction) (*Result, error) {
	runID := uuid.NewString()
	started := time.Now()
	if logger.L != nil {
		logger.L.Info("Chain rebuild starting", "runID", runID, "transactions", len(ledger))
	}

	classified, skipped := e.classifyLedger(ledger)
	groups := make(map[groupKey][]models.ClassifiedTransaction)
	for _, tx := range classified {
		key := groupKey{Symbol: tx.Symbol, Family: tx.SecurityFamily}
		groups[key] = append(groups[key], tx)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol == keys[j].Symbol {
			return keys[i].Family < keys[j].Family
		}
		return keys[i].Symbol < keys[j].Symbol
	})

	outcomes := make(map[groupKey]*groupOutcome, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chain rebuild cancelled: %w", err)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(key groupKey, txs []models.ClassifiedTransaction) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := &groupOutcome{}
			outcome.result, outcome.err = e.matcher.Match(key.Symbol, key.Family, txs)
			if outcome.err == nil {
				outcome.chains = e.builder.Build(key.Symbol, key.Family, txs, outcome.result)
			}

			mu.Lock()
			outcomes[key] = outcome
			mu.Unlock()
		}(key, groups[key])
	}
	wg.Wait()

	result := &Result{RunID: runID}
	splitTransactions := 0
	for _, key := range keys {
		outcome := outcomes[key]
		if outcome.err != nil {
			return nil, fmt.Errorf("matching %s/%s: %w", key.Symbol, key.Family, outcome.err)
		}
		result.Chains = append(result.Chains, outcome.chains...)
		result.Matches = append(result.Matches, outcome.result.Matches...)
		result.UnmatchedCloses = append(result.UnmatchedCloses, outcome.result.UnmatchedCloses...)
		splitTransactions += outcome.result.SplitTransactions
	}

	result.Statistics = e.stats.Aggregate(ledger, classified, result.Chains, result.UnmatchedCloses, splitTransactions, skipped)

	if logger.L != nil {
		logger.L.Info("Chain rebuild finished",
			"runID", runID,
			"chains", len(result.Chains),
			"unmatchedCloses", len(result.UnmatchedCloses),
			"skipped", skipped,
			"duration", time.Since(started).String())
	}
	return result, nil
}

// classifyLedger tags every row and drops malformed ones: a missing id or
// date always disqualifies a row, and opens/closes additionally need a
// non-zero quantity to be matchable.
func (e *Engine) classifyLedger(ledger []models.Transaction) ([]models.ClassifiedTransaction, int) {
	classified := make([]models.ClassifiedTransaction, 0, len(ledger))
	skipped := 0
	for _, tx := range ledger {
		if tx.ID == "" || tx.Date.IsZero() || tx.Symbol == "" {
			skipped++
			continue
		}
		ct := e.classifier.Classify(tx)
		if ct.Kind != models.KindNeutral && ct.SignedQuantity == 0 {
			skipped++
			continue
		}
		classified = append(classified, ct)
	}
	return classified, skipped
}
