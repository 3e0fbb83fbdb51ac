package accounts

import "github.com/cleared-dev/reconcile/internal/model"

// DefaultAccounts returns the accounts a fresh data directory starts with:
// the bank and cash accounts transfers are linked against by default.
func DefaultAccounts() []model.Account {
	return []model.Account{
		{ID: 1, Name: "Checking"},
		{ID: 2, Name: "Cash"},
	}
}
