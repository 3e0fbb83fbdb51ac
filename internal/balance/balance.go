// Package balance compares an account's ledger balance with the balance the
// bank reports and books a correction for the difference.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
)

// DefaultPayee names the counterparty of correction postings.
const DefaultPayee = "Automatic Balance Correction"

// Ledger is the storage the corrector needs.
type Ledger interface {
	Account(id int) (model.Account, bool)
	Postings(accountID int) []model.Posting
	Insert(p model.Posting) (model.Posting, error)
	FindOrCreatePayee(name string) (bool, error)
}

// Options configures correction postings.
type Options struct {
	Payee      string
	CategoryID string // optional
	Now        func() time.Time
}

// Result reports one check.
type Result struct {
	AccountID         int
	ActualBalance     int64
	ExpectedBalance   int64
	Difference        int64 // expected minus actual
	CorrectionCreated bool
	CorrectionID      string
}

// Corrector books balance corrections.
type Corrector struct {
	ledger Ledger
	opts   Options
}

// New creates a corrector. Unset options fall back to DefaultPayee and time.Now.
func New(ledger Ledger, opts Options) *Corrector {
	if opts.Payee == "" {
		opts.Payee = DefaultPayee
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Corrector{ledger: ledger, opts: opts}
}

// Sum returns the balance of the non-tombstoned postings.
func Sum(postings []model.Posting) int64 {
	var total int64
	for _, p := range postings {
		if !p.Tombstone {
			total += p.Amount
		}
	}
	return total
}

// CheckAndCorrect books one posting dated today for expected minus actual.
// Dry runs and zero differences write nothing. Every call corrects whatever
// difference remains at that moment; earlier corrections are not inspected.
func (c *Corrector) CheckAndCorrect(ctx context.Context, accountID int, expected int64, dryRun bool) (Result, error) {
	if _, ok := c.ledger.Account(accountID); !ok {
		return Result{}, fmt.Errorf("checking balance: unknown account %d", accountID)
	}

	actual := Sum(c.ledger.Postings(accountID))
	res := Result{
		AccountID:       accountID,
		ActualBalance:   actual,
		ExpectedBalance: expected,
		Difference:      expected - actual,
	}
	log := logger.FromContext(ctx).With().
		Int("account_id", accountID).
		Int64("expected", expected).
		Int64("actual", actual).
		Logger()

	if res.Difference == 0 || dryRun {
		log.Debug().Int64("difference", res.Difference).Bool("dry_run", dryRun).Msg("balance checked")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if _, err := c.ledger.FindOrCreatePayee(c.opts.Payee); err != nil {
		return res, fmt.Errorf("creating correction payee: %w", err)
	}

	now := c.opts.Now()
	p, err := c.ledger.Insert(model.Posting{
		AccountID:  accountID,
		Date:       time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Amount:     res.Difference,
		Payee:      c.opts.Payee,
		CategoryID: c.opts.CategoryID,
		Notes: fmt.Sprintf("Bank balance %s, ledger balance %s",
			amount.Format(expected), amount.Format(actual)),
		Cleared: true,
	})
	if err != nil {
		return res, fmt.Errorf("booking correction: %w", err)
	}

	res.CorrectionCreated = true
	res.CorrectionID = p.ID
	log.Info().Int64("difference", res.Difference).Str("posting_id", p.ID).Msg("booked balance correction")
	return res, nil
}
