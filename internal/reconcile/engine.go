// Package reconcile matches freshly parsed records against an account's
// ledger postings and, in commit mode, writes the outcome.
//
// Preview and commit share one matching pass, so a preview verdict is
// exactly what a commit with the same ledger state would do.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
)

// Mode selects whether Reconcile writes.
type Mode int

const (
	Preview Mode = iota
	Commit
)

func (m Mode) String() string {
	if m == Commit {
		return "commit"
	}
	return "preview"
}

// Ledger is the storage the engine reads and writes.
type Ledger interface {
	Account(id int) (model.Account, bool)
	Postings(accountID int) []model.Posting
	Insert(p model.Posting) (model.Posting, error)
	Update(p model.Posting) error
}

// PreviewEntry pairs a matched record with the existing posting's current
// attributes for side-by-side display.
type PreviewEntry struct {
	Transaction model.Transaction
	Existing    model.Posting
}

// Result is the outcome of one Reconcile call.
type Result struct {
	// Added holds new posting IDs in commit mode and record batch IDs in preview.
	Added []string
	// Updated holds the IDs of existing postings that gain data.
	Updated        []string
	UpdatedPreview []PreviewEntry
	// Transactions are the records with verdicts, new ones first.
	Transactions []model.Transaction
	// Inserted maps record batch IDs to the postings created for them. Commit only.
	Inserted map[uuid.UUID]string
	Errors   []error
}

// Engine reconciles records against one ledger.
type Engine struct {
	ledger Ledger
	rule   MatchRule
}

// NewEngine creates an engine.
func NewEngine(ledger Ledger, rule MatchRule) *Engine {
	return &Engine{ledger: ledger, rule: rule}
}

// Reconcile matches records against accountID's postings. Unknown accounts
// fail with a *Error. Commit writes are checked against ctx between records;
// writes already issued stand when ctx is cancelled.
func (e *Engine) Reconcile(ctx context.Context, accountID int, records []model.Transaction, mode Mode) (Result, error) {
	if _, ok := e.ledger.Account(accountID); !ok {
		return Result{}, &Error{Kind: KindUnknownAccount, AccountID: accountID, Index: -1, Msg: "no such account"}
	}
	return e.run(ctx, accountID, e.ledger.Postings(accountID), records, mode)
}

// PreviewPlanned previews records for an account that does not exist yet,
// so every selected record is new.
func (e *Engine) PreviewPlanned(ctx context.Context, records []model.Transaction) (Result, error) {
	return e.run(ctx, 0, nil, records, Preview)
}

type update struct {
	index   int
	posting model.Posting
}

func (e *Engine) run(ctx context.Context, accountID int, existing []model.Posting, records []model.Transaction, mode Mode) (Result, error) {
	log := logger.FromContext(ctx).With().Int("account_id", accountID).Stringer("mode", mode).Logger()

	res := Result{Transactions: make([]model.Transaction, len(records))}
	copy(res.Transactions, records)

	m := newMatcher(existing, e.rule)
	var inserts []int
	var updates []update

	for i := range res.Transactions {
		t := &res.Transactions[i]
		t.Verdict = model.Verdict{}
		if !t.Selected {
			continue
		}
		if t.Date.IsZero() {
			res.Errors = append(res.Errors, &Error{Kind: KindInvalidRecord, AccountID: accountID, Index: i, Msg: "missing date"})
			continue
		}

		j := m.claim(*t)
		if j < 0 {
			inserts = append(inserts, i)
			continue
		}

		p := existing[j]
		t.Verdict.Existing = true
		t.Verdict.MatchedID = p.ID

		filled := p
		material := !p.Cleared && fill(&filled, *t)
		switch {
		case p.Tombstone:
			t.Verdict.Tombstone = true
		case t.ForceAdd:
			inserts = append(inserts, i)
		case !material:
			t.Verdict.Ignored = true
		default:
			updates = append(updates, update{index: i, posting: filled})
			res.Updated = append(res.Updated, p.ID)
		}
		res.UpdatedPreview = append(res.UpdatedPreview, PreviewEntry{Transaction: *t, Existing: p})
	}

	if mode == Preview {
		for _, i := range inserts {
			res.Added = append(res.Added, res.Transactions[i].BatchID.String())
		}
		sortForDisplay(res.Transactions)
		log.Debug().Int("new", len(inserts)).Int("updated", len(updates)).Msg("previewed records")
		return res, nil
	}

	res.Inserted = make(map[uuid.UUID]string, len(inserts))
	for _, i := range inserts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t := res.Transactions[i]
		stored, err := e.ledger.Insert(newPosting(accountID, t))
		if err != nil {
			return res, fmt.Errorf("inserting record %d: %w", i+1, err)
		}
		res.Added = append(res.Added, stored.ID)
		res.Inserted[t.BatchID] = stored.ID
	}
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.ledger.Update(u.posting); err != nil {
			return res, fmt.Errorf("updating %s for record %d: %w", u.posting.ID, u.index+1, err)
		}
	}

	sortForDisplay(res.Transactions)
	log.Info().Int("added", len(res.Added)).Int("updated", len(res.Updated)).Msg("committed records")
	return res, nil
}

func newPosting(accountID int, t model.Transaction) model.Posting {
	return model.Posting{
		AccountID:     accountID,
		Date:          t.Date,
		Amount:        t.Amount,
		Payee:         t.Payee,
		ImportedPayee: t.ImportedPayee,
		Notes:         t.Notes,
		CategoryID:    t.CategoryID,
		ExternalID:    t.ExternalID,
		Cleared:       true,
	}
}

// sortForDisplay puts new records first and matched ones last, keeping input order otherwise.
func sortForDisplay(txns []model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return !txns[i].Verdict.Existing && txns[j].Verdict.Existing
	})
}
