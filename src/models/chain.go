package models

import "time"

// Lot is the unconsumed remainder of one opening transaction while it sits in
// a symbol's FIFO queue. Lots are owned by the matcher for the duration of one
// run and are never shared across symbols.
type Lot struct {
	OpenTransactionID string
	Symbol            string
	Family            SecurityFamily
	OpenDate          time.Time
	RemainingQuantity float64
	OriginalQuantity  float64 // quantity at open, for proportional amount allocation
	OpenAmount        float64 // full signed cash effect of the opening transaction
}

// Match records one FIFO pairing between a closing transaction and the open
// lot that funded it. A close spanning several lots yields several Matches,
// and a lot drained by several closes appears in several Matches.
type Match struct {
	CloseTransactionID string         `json:"close_transaction_id"`
	OpenTransactionID  string         `json:"open_transaction_id"`
	Symbol             string         `json:"symbol"`
	Family             SecurityFamily `json:"family"`
	QuantityMatched    float64        `json:"quantity_matched"`
	RealizedAmount     float64        `json:"realized_amount"`
	CloseDate          time.Time      `json:"close_date"`
}

// UnmatchedClose is the unsatisfied remainder of a closing transaction for
// which no funding lot existed (position opened before the observed ledger).
// Reported, never fatal.
type UnmatchedClose struct {
	TransactionID     string  `json:"transaction_id"`
	Symbol            string  `json:"symbol"`
	RemainingQuantity float64 `json:"remaining_quantity"`
}

// TransactionRole annotates a chain member for display.
type TransactionRole string

const (
	RoleOpening      TransactionRole = "opening"
	RoleClosing      TransactionRole = "closing"
	RoleIntermediate TransactionRole = "intermediate"
)

// Chain is one round-trip position: the maximal set of opens and closes that
// share funding, from the first open until the close that drained the last
// unit, or still open.
type Chain struct {
	ChainID             string                     `json:"chain_id"`
	Symbol              string                     `json:"symbol"`
	Family              SecurityFamily             `json:"family"`
	TransactionIDs      []string                   `json:"transaction_ids"` // (date, id) order
	Roles               map[string]TransactionRole `json:"-"`
	ChainStartDate      time.Time                  `json:"chain_start_date"`
	ChainEndDate        *time.Time                 `json:"chain_end_date"` // nil while any lot is open
	TotalRealizedAmount float64                    `json:"total_realized_amount"`
	IsClosed            bool                       `json:"is_closed"`
}

// ChainSummary is the listing row exposed to the UI layer.
type ChainSummary struct {
	ChainID             string         `json:"chain_id"`
	Symbol              string         `json:"symbol"`
	Family              SecurityFamily `json:"family"`
	ChainStartDate      string         `json:"chain_start_date"`
	ChainEndDate        *string        `json:"chain_end_date"`
	TransactionCount    int            `json:"transaction_count"`
	TotalRealizedAmount float64        `json:"total_realized_amount"`
	IsClosed            bool           `json:"is_closed"`
}

// ChainTransaction is one member of a chain, annotated for display.
type ChainTransaction struct {
	Transaction
	Role TransactionRole `json:"role"`
}

// ChainStatistics is the pure reduction over one completed run.
type ChainStatistics struct {
	TotalTransactions       int `json:"total_transactions"`
	ChainedTransactions     int `json:"chained_transactions"`
	TotalChains             int `json:"total_chains"`
	ClosedChains            int `json:"closed_chains"`
	EquityChainTransactions int `json:"equity_chain_transactions"`
	OptionChainTransactions int `json:"option_chain_transactions"`
	EquityChains            int `json:"equity_chains"`
	OptionChains            int `json:"option_chains"`
	UnmatchedCloses         int `json:"unmatched_closes"`
	SplitTransactions       int `json:"split_transactions"`
	SkippedTransactions     int `json:"skipped_transactions"`
	NeutralTransactions     int `json:"neutral_transactions"`
}

// RebuildResult is returned by a full rebuild ("process chains").
type RebuildResult struct {
	RunID             string `json:"run_id"`
	TotalTransactions int    `json:"total_transactions"`
	EquityChains      int    `json:"equity_chains"`
	OptionChains      int    `json:"option_chains"`
	UnmatchedCloses   int    `json:"unmatched_closes"`
	SplitTransactions int    `json:"split_transactions"`
}
