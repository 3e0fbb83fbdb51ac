package model

import (
	"time"

	"github.com/google/uuid"
)

// DateFormat is the ISO calendar-date layout used throughout the pipeline.
const DateFormat = "2006-01-02"

// Kind classifies a multi-currency record's transfer intent.
type Kind string

const (
	KindTopup         Kind = "topup"
	KindSwiftTransfer Kind = "swiftTransfer"
	KindATM           Kind = "atm"
	KindExchange      Kind = "exchange"
	KindCardPayment   Kind = "cardPayment"
	KindExpense       Kind = "expense"
)

// IsTransfer reports whether records of this kind get a linked counter posting.
func (k Kind) IsTransfer() bool {
	switch k {
	case KindTopup, KindSwiftTransfer, KindATM, KindExchange:
		return true
	}
	return false
}

// Core holds the fields every parser produces.
type Core struct {
	Amount        int64 // minor units
	Date          time.Time
	Payee         string
	ImportedPayee string // raw source text, never rewritten
	Notes         string
	ExternalID    string
	Currency      string // empty = home currency
}

// MultiCurrency is only set by parsers that understand multi-currency exports.
type MultiCurrency struct {
	Kind           Kind
	TransferTarget string // counter account name hint
	TargetCurrency string // exchange only
	TargetAmount   *int64 // exchange only, parsed converted amount
}

// Verdict is the reconciliation outcome for one record. Never persisted.
type Verdict struct {
	Existing  bool
	Ignored   bool
	Tombstone bool
	MatchedID string
}

// Transaction is the normalized record flowing through one import batch.
type Transaction struct {
	Core
	MultiCurrency *MultiCurrency

	BatchID    uuid.UUID
	Selected   bool
	ForceAdd   bool
	CategoryID string

	Verdict Verdict
}

// NewTransaction wraps a parsed core record for a batch, selected by default.
func NewTransaction(core Core) Transaction {
	return Transaction{Core: core, BatchID: uuid.New(), Selected: true}
}

// Kind returns the multi-currency kind, or "" for plain records.
func (t Transaction) Kind() Kind {
	if t.MultiCurrency == nil {
		return ""
	}
	return t.MultiCurrency.Kind
}

// Plain returns a copy without router-only fields.
func (t Transaction) Plain() Transaction {
	t.MultiCurrency = nil
	return t
}
