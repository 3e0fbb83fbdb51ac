package model

import "time"

// Posting is a durable ledger record in one account.
type Posting struct {
	ID            string // "YYYY-MM-NNN"
	AccountID     int
	Date          time.Time
	Amount        int64 // minor units, negative = outflow
	Payee         string
	ImportedPayee string
	Notes         string
	CategoryID    string
	ExternalID    string
	Cleared       bool
	Tombstone     bool
	TransferID    string // counter posting of a transfer link
}

// TransferLink pairs an origin posting with its counter posting in another account.
type TransferLink struct {
	OriginID  string
	CounterID string
}
