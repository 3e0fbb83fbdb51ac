// Package router imports multi-currency exports: one ledger account per
// currency, category proposals, and linked counter postings for transfers.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
	"github.com/cleared-dev/reconcile/internal/reconcile"
)

// Ledger is the storage the router needs on top of the engine's.
type Ledger interface {
	reconcile.Ledger
	AccountByName(name string) (model.Account, bool)
	FindOrCreateAccount(name, currency string) (model.Account, bool, error)
	Posting(id string) (model.Posting, bool)
}

// CategoryProposer suggests a category ID for a payee.
type CategoryProposer interface {
	Propose(payee string) (string, bool)
}

// Options configures one routed import.
type Options struct {
	Provider        string // account name prefix, e.g. "Revolut"
	HomeCurrency    string
	BankAccountName string
	CashAccountName string
	CreateTransfers bool
	MatchRule       reconcile.MatchRule
}

// Imported lists what one currency partition wrote, or would write.
type Imported struct {
	Added   []string
	Updated []string
}

// Partition is one currency's reconciliation outcome.
type Partition struct {
	Currency    string
	AccountName string
	AccountID   int  // 0 when planned
	Planned     bool // account does not exist yet (preview only)
	Result      reconcile.Result
}

// Result is the outcome of RouteAndImport.
type Result struct {
	AccountsCreated   []string
	Imported          map[string]Imported
	TransfersLinked   int
	CategoriesApplied int
	Links             []model.TransferLink
	Partitions        []Partition
	// Proposals maps record batch IDs to the category the matcher proposed.
	Proposals map[uuid.UUID]string
	Errors    []error
}

// Router routes records to per-currency accounts.
type Router struct {
	ledger   Ledger
	engine   *reconcile.Engine
	proposer CategoryProposer
	opts     Options
}

// New creates a router. proposer may be nil.
func New(ledger Ledger, proposer CategoryProposer, opts Options) *Router {
	return &Router{
		ledger:   ledger,
		engine:   reconcile.NewEngine(ledger, opts.MatchRule),
		proposer: proposer,
		opts:     opts,
	}
}

// AccountName is the ledger account holding provider's ccy pocket.
func AccountName(provider, ccy string) string {
	return strings.TrimSpace(provider + " " + ccy)
}

type partition struct {
	currency string
	records  []model.Transaction
}

// partitionByCurrency groups records in first-seen currency order.
func partitionByCurrency(records []model.Transaction, home string) []partition {
	var parts []partition
	index := make(map[string]int)
	for _, t := range records {
		ccy := strings.ToUpper(strings.TrimSpace(t.Currency))
		if ccy == "" {
			ccy = home
		}
		i, ok := index[ccy]
		if !ok {
			i = len(parts)
			index[ccy] = i
			parts = append(parts, partition{currency: ccy})
		}
		parts[i].records = append(parts[i].records, t)
	}
	return parts
}

// RouteAndImport reconciles each currency partition on its own account.
// Partition failures are collected in Result.Errors. Transfers are linked
// after every partition has committed, never in preview.
func (r *Router) RouteAndImport(ctx context.Context, records []model.Transaction, mode reconcile.Mode) (Result, error) {
	log := logger.FromContext(ctx)
	res := Result{
		Imported:  make(map[string]Imported),
		Proposals: make(map[uuid.UUID]string),
	}
	inserted := make(map[uuid.UUID]string)

	for _, part := range partitionByCurrency(records, r.opts.HomeCurrency) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := AccountName(r.opts.Provider, part.currency)
		p := Partition{Currency: part.currency, AccountName: name}

		plain := make([]model.Transaction, len(part.records))
		for i, t := range part.records {
			if r.proposer != nil {
				if id, ok := r.proposer.Propose(t.Payee); ok {
					res.Proposals[t.BatchID] = id
					if t.CategoryID == "" {
						t.CategoryID = id
						res.CategoriesApplied++
					}
				}
			}
			plain[i] = t.Plain()
		}

		var rres reconcile.Result
		var err error
		if mode == reconcile.Preview {
			acct, ok := r.ledger.AccountByName(name)
			if ok {
				p.AccountID = acct.ID
				rres, err = r.engine.Reconcile(ctx, acct.ID, plain, mode)
			} else {
				p.Planned = true
				res.AccountsCreated = append(res.AccountsCreated, name)
				rres, err = r.engine.PreviewPlanned(ctx, plain)
			}
		} else {
			acct, created, ferr := r.ledger.FindOrCreateAccount(name, part.currency)
			if ferr != nil {
				res.Errors = append(res.Errors, fmt.Errorf("account %q: %w", name, ferr))
				continue
			}
			if created {
				res.AccountsCreated = append(res.AccountsCreated, name)
			}
			p.AccountID = acct.ID
			rres, err = r.engine.Reconcile(ctx, acct.ID, plain, mode)
		}

		p.Result = rres
		res.Partitions = append(res.Partitions, p)
		res.Errors = append(res.Errors, rres.Errors...)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			res.Errors = append(res.Errors, fmt.Errorf("partition %s: %w", part.currency, err))
		}
		res.Imported[part.currency] = Imported{Added: rres.Added, Updated: rres.Updated}
		for batchID, postingID := range rres.Inserted {
			inserted[batchID] = postingID
		}

		log.Info().
			Str("currency", part.currency).
			Str("account", name).
			Int("added", len(rres.Added)).
			Int("updated", len(rres.Updated)).
			Msg("routed partition")
	}

	if mode == reconcile.Commit && r.opts.CreateTransfers {
		if err := r.linkTransfers(ctx, records, inserted, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}
