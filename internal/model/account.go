package model

// Account is a ledger account. Names are unique and compared case-sensitively.
type Account struct {
	ID        int
	Name      string
	OffBudget bool
	Currency  string // ISO code, empty = home currency
	Closed    bool
}
