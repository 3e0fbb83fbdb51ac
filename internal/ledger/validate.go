package ledger

import (
	"fmt"

	"github.com/cleared-dev/reconcile/internal/id"
	"github.com/cleared-dev/reconcile/internal/model"
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Rule        int
	PostingID   string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("rule %d [%s]: %s", e.Rule, e.PostingID, e.Description)
}

// AccountChecker tests whether an account ID exists.
type AccountChecker interface {
	Exists(id int) bool
}

// ValidatePostings enforces the ledger invariants on a set of postings.
func ValidatePostings(postings []model.Posting, accounts AccountChecker) []ValidationError {
	var errs []ValidationError

	byID := make(map[string]model.Posting, len(postings))
	for _, p := range postings {
		// Rule 1: posting IDs are well formed and unique.
		if _, _, _, err := id.ParsePostingID(p.ID); err != nil {
			errs = append(errs, ValidationError{Rule: 1, PostingID: p.ID, Description: err.Error()})
		}
		if _, dup := byID[p.ID]; dup {
			errs = append(errs, ValidationError{Rule: 1, PostingID: p.ID, Description: "duplicate posting ID"})
		}
		byID[p.ID] = p

		// Rule 2: valid account references.
		if !accounts.Exists(p.AccountID) {
			errs = append(errs, ValidationError{
				Rule:        2,
				PostingID:   p.ID,
				Description: fmt.Sprintf("unknown account %d", p.AccountID),
			})
		}
	}

	// Rule 3: transfer links are mutual and cross accounts.
	for _, p := range postings {
		if p.TransferID == "" {
			continue
		}
		q, ok := byID[p.TransferID]
		switch {
		case !ok:
			errs = append(errs, ValidationError{
				Rule:        3,
				PostingID:   p.ID,
				Description: fmt.Sprintf("transfer counterpart %s does not exist", p.TransferID),
			})
		case q.TransferID != p.ID:
			errs = append(errs, ValidationError{
				Rule:        3,
				PostingID:   p.ID,
				Description: fmt.Sprintf("counterpart %s links to %q, not back", q.ID, q.TransferID),
			})
		case q.AccountID == p.AccountID:
			errs = append(errs, ValidationError{
				Rule:        3,
				PostingID:   p.ID,
				Description: "transfer links postings in the same account",
			})
		}
	}

	return errs
}

// Validate checks every stored posting.
func (s *Store) Validate() []ValidationError {
	return ValidatePostings(s.All(), s.accounts)
}
