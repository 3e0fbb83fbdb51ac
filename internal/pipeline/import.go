package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
	"github.com/cleared-dev/reconcile/internal/payees"
	"github.com/cleared-dev/reconcile/internal/reconcile"
	"github.com/cleared-dev/reconcile/internal/router"
)

// DefaultProvider is the multi-currency provider used when a request names none.
const DefaultProvider = "Revolut"

// SingleRequest imports records into one existing account.
type SingleRequest struct {
	AccountID    int
	Transactions []model.Transaction
	Mode         reconcile.Mode
	MatchRule    *reconcile.MatchRule // nil uses the settings
}

// SingleResponse is the engine result plus the categorization and mapping update.
type SingleResponse struct {
	reconcile.Result
	CategoriesApplied int
	MappingsLearned   int
}

// ImportSingle reconciles records against one account. Multi-currency
// fields are dropped. Uncategorized records get the matcher's proposal and,
// after a commit, the payee mapping learns from the written records.
func ImportSingle(ctx context.Context, ic *ImportContext, req SingleRequest) (SingleResponse, error) {
	rule := ic.MatchRule()
	if req.MatchRule != nil {
		rule = *req.MatchRule
	}

	matcher := ic.Matcher()
	records := make([]model.Transaction, len(req.Transactions))
	for i, t := range req.Transactions {
		records[i] = t.Plain()
	}
	proposals, applied := propose(matcher, records)

	res, err := reconcile.NewEngine(ic.Ledger, rule).Reconcile(ctx, req.AccountID, records, req.Mode)
	resp := SingleResponse{Result: res, CategoriesApplied: applied}
	if err != nil || req.Mode != reconcile.Commit {
		return resp, err
	}

	learned, err := learn(ic, matcher, observations(req.Transactions, proposals, res.Inserted))
	resp.MappingsLearned = learned
	if err != nil {
		resp.Errors = append(resp.Errors, err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("account_id", req.AccountID).
		Int("categories_applied", applied).
		Int("mappings_learned", learned).
		Msg("single-account import committed")
	return resp, nil
}

// propose fills empty categories in place from the matcher. It returns
// every proposal by batch ID and how many were applied.
func propose(matcher *payees.Matcher, records []model.Transaction) (map[uuid.UUID]string, int) {
	proposals := make(map[uuid.UUID]string)
	applied := 0
	for i := range records {
		id, ok := matcher.Propose(records[i].Payee)
		if !ok {
			continue
		}
		proposals[records[i].BatchID] = id
		if records[i].CategoryID == "" {
			records[i].CategoryID = id
			applied++
		}
	}
	return proposals, applied
}

// learn updates the mapping from committed records and saves it when it changed.
func learn(ic *ImportContext, matcher *payees.Matcher, obs []payees.Observation) (int, error) {
	n := matcher.Learn(obs)
	if n == 0 || ic.SaveMapping == nil {
		return n, nil
	}
	return n, ic.SaveMapping(ic.Mapping)
}

// MultiOptions overrides the provider settings for one request.
type MultiOptions struct {
	BankAccountName string
	CashAccountName string
	CreateTransfers bool
}

// MultiRequest imports a multi-currency export.
type MultiRequest struct {
	Provider     string // defaults to DefaultProvider
	Transactions []model.Transaction
	Mode         reconcile.Mode
	Options      *MultiOptions // nil uses the settings
}

// MultiResponse is the router result plus the mapping update.
type MultiResponse struct {
	router.Result
	MappingsLearned int
}

// ImportMultiCurrency routes records to per-currency accounts. After a
// commit the payee mapping learns from the written records and is saved.
func ImportMultiCurrency(ctx context.Context, ic *ImportContext, req MultiRequest) (MultiResponse, error) {
	provider := req.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	pc := ic.Settings.Provider(provider)
	opts := router.Options{
		Provider:        provider,
		HomeCurrency:    ic.Settings.HomeCurrency,
		BankAccountName: pc.BankAccountName,
		CashAccountName: pc.CashAccountName,
		CreateTransfers: !pc.SkipTransfers,
		MatchRule:       ic.MatchRule(),
	}
	if o := req.Options; o != nil {
		opts.BankAccountName = o.BankAccountName
		opts.CashAccountName = o.CashAccountName
		opts.CreateTransfers = o.CreateTransfers
	}

	matcher := ic.Matcher()
	res, err := router.New(ic.Ledger, matcher, opts).RouteAndImport(ctx, req.Transactions, req.Mode)
	resp := MultiResponse{Result: res}
	if err != nil || req.Mode != reconcile.Commit {
		return resp, err
	}

	inserted := make(map[uuid.UUID]string)
	for _, p := range res.Partitions {
		for batchID, postingID := range p.Result.Inserted {
			inserted[batchID] = postingID
		}
	}
	learned, err := learn(ic, matcher, observations(req.Transactions, res.Proposals, inserted))
	resp.MappingsLearned = learned
	if err != nil {
		resp.Errors = append(resp.Errors, err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("provider", provider).
		Int("transfers_linked", res.TransfersLinked).
		Int("categories_applied", res.CategoriesApplied).
		Int("mappings_learned", resp.MappingsLearned).
		Msg("multi-currency import committed")
	return resp, nil
}

// observations lists the written records in input order for the mapping update.
func observations(records []model.Transaction, proposals map[uuid.UUID]string, inserted map[uuid.UUID]string) []payees.Observation {
	var obs []payees.Observation
	for _, t := range records {
		if _, ok := inserted[t.BatchID]; !ok {
			continue
		}
		proposed := proposals[t.BatchID]
		chosen := t.CategoryID
		if chosen == "" {
			chosen = proposed
		}
		obs = append(obs, payees.Observation{Payee: t.Payee, CategoryID: chosen, ProposedID: proposed})
	}
	return obs
}
