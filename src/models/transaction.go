package models

import "time"

// SecurityFamily describes which matching semantics a transaction follows.
type SecurityFamily string

const (
	FamilyEquity SecurityFamily = "EQUITY"
	FamilyOption SecurityFamily = "OPTION"
)

// TxKind is the semantic classification of a ledger row for lot matching.
type TxKind string

const (
	KindOpen    TxKind = "OPEN"
	KindClose   TxKind = "CLOSE"
	KindNeutral TxKind = "NEUTRAL"
)

// Transaction is one immutable row of the materialized ledger. The engine
// never mutates these; ID must be unique and stable across re-runs.
type Transaction struct {
	ID             string         `json:"id"`
	Date           time.Time      `json:"date"`
	Symbol         string         `json:"symbol"`
	SecurityFamily SecurityFamily `json:"security_family"`
	RawType        string         `json:"raw_type"` // broker-reported, e.g. "Bought", "Sold Short"
	SignedQuantity float64        `json:"signed_quantity"`
	Amount         float64        `json:"amount"` // signed cash effect, negative = cash out
	Strike         float64        `json:"strike,omitempty"`
}

// ClassifiedTransaction is a Transaction tagged with its matching semantics.
// Neutral rows are kept for audit and (for splits) lot rescaling, but never
// enter the FIFO queue as opens or closes.
type ClassifiedTransaction struct {
	Transaction
	Kind    TxKind
	IsSplit bool // corporate-action split: rescales open lots in stream order
}
