package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/model"
)

// targetAccountName resolves where a transfer's counter posting goes.
// An empty name means the record stays a plain posting.
func (r *Router) targetAccountName(t model.Transaction) (name, currency string) {
	mc := t.MultiCurrency
	if mc == nil {
		return "", ""
	}
	if mc.TransferTarget != "" {
		return mc.TransferTarget, mc.TargetCurrency
	}
	switch mc.Kind {
	case model.KindTopup, model.KindSwiftTransfer:
		return r.opts.BankAccountName, r.opts.HomeCurrency
	case model.KindATM:
		return r.opts.CashAccountName, r.opts.HomeCurrency
	case model.KindExchange:
		if mc.TargetCurrency == "" {
			return "", ""
		}
		return AccountName(r.opts.Provider, mc.TargetCurrency), mc.TargetCurrency
	}
	return "", ""
}

// counterAmount is the inverse of the origin, or the parsed converted amount for exchanges.
func counterAmount(t model.Transaction, origin model.Posting) int64 {
	if mc := t.MultiCurrency; mc != nil && mc.Kind == model.KindExchange && mc.TargetAmount != nil {
		return *mc.TargetAmount
	}
	return -origin.Amount
}

func (r *Router) linkTransfers(ctx context.Context, records []model.Transaction, inserted map[uuid.UUID]string, res *Result) error {
	log := logger.FromContext(ctx)

	// Exchange legs inserted by this batch can pair with each other.
	exchangeLegs := make(map[string]bool)
	for _, t := range records {
		if id, ok := inserted[t.BatchID]; ok && t.Kind() == model.KindExchange {
			exchangeLegs[id] = true
		}
	}

	for _, t := range records {
		if !t.Kind().IsTransfer() {
			continue
		}
		originID, ok := inserted[t.BatchID]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		origin, ok := r.ledger.Posting(originID)
		if !ok || origin.TransferID != "" {
			continue
		}

		name, ccy := r.targetAccountName(t)
		if name == "" {
			log.Warn().Str("posting_id", originID).Str("kind", string(t.Kind())).Msg("transfer target unresolved, keeping plain posting")
			continue
		}
		target, created, err := r.ledger.FindOrCreateAccount(name, ccy)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("transfer target %q for %s: %w", name, originID, err))
			continue
		}
		if created {
			res.AccountsCreated = append(res.AccountsCreated, name)
		}
		if target.ID == origin.AccountID {
			log.Warn().Str("posting_id", originID).Str("account", name).Msg("transfer target is the origin account")
			continue
		}

		var link model.TransferLink
		if t.Kind() == model.KindExchange {
			if leg, ok := r.findExchangeLeg(target.ID, origin, exchangeLegs); ok {
				link, err = r.pair(origin, leg)
			} else {
				link, err = r.insertCounter(target.ID, origin, counterAmount(t, origin))
			}
		} else {
			link, err = r.insertCounter(target.ID, origin, counterAmount(t, origin))
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("linking %s: %w", originID, err))
			continue
		}

		res.TransfersLinked++
		res.Links = append(res.Links, link)
		log.Debug().Str("origin", link.OriginID).Str("counter", link.CounterID).Str("account", name).Msg("linked transfer")
	}
	return nil
}

// findExchangeLeg returns the other side of an exchange that the same batch
// already imported: unlinked, same date, opposite sign.
func (r *Router) findExchangeLeg(accountID int, origin model.Posting, legs map[string]bool) (model.Posting, bool) {
	for _, p := range r.ledger.Postings(accountID) {
		if !legs[p.ID] || p.Tombstone || p.TransferID != "" {
			continue
		}
		if !p.Date.Equal(origin.Date) || sign(p.Amount) != -sign(origin.Amount) {
			continue
		}
		return p, true
	}
	return model.Posting{}, false
}

func (r *Router) pair(origin, leg model.Posting) (model.TransferLink, error) {
	leg.TransferID = origin.ID
	if err := r.ledger.Update(leg); err != nil {
		return model.TransferLink{}, err
	}
	origin.TransferID = leg.ID
	if err := r.ledger.Update(origin); err != nil {
		return model.TransferLink{}, err
	}
	return model.TransferLink{OriginID: origin.ID, CounterID: leg.ID}, nil
}

func (r *Router) insertCounter(accountID int, origin model.Posting, amt int64) (model.TransferLink, error) {
	counter, err := r.ledger.Insert(model.Posting{
		AccountID:  accountID,
		Date:       origin.Date,
		Amount:     amt,
		Payee:      origin.Payee,
		Notes:      origin.Notes,
		Cleared:    true,
		TransferID: origin.ID,
	})
	if err != nil {
		return model.TransferLink{}, err
	}
	origin.TransferID = counter.ID
	if err := r.ledger.Update(origin); err != nil {
		return model.TransferLink{}, err
	}
	return model.TransferLink{OriginID: origin.ID, CounterID: counter.ID}, nil
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
