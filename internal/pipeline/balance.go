package pipeline

import (
	"context"

	"github.com/cleared-dev/reconcile/internal/balance"
	"github.com/cleared-dev/reconcile/internal/logger"
)

// BalanceResponse reports a balance check to the caller.
type BalanceResponse struct {
	Difference       int64
	AccountBalance   int64
	CorrectionBooked bool
	CorrectionID     string
	Success          bool
	Error            string
}

// CheckBalance compares accountID with the bank's balance and, unless
// dryRun, books a correction. Failures come back with Success false and
// nothing written.
func CheckBalance(ctx context.Context, ic *ImportContext, accountID int, expected int64, dryRun bool) BalanceResponse {
	log := logger.FromContext(ctx)

	var categoryID string
	if q := ic.Settings.Correction.Category; q != "" {
		id, ok := ic.Categories.ResolveQualified(q)
		if !ok {
			log.Warn().Str("category", q).Msg("correction category not found, booking without one")
		}
		categoryID = id
	}

	c := balance.New(ic.Ledger, balance.Options{
		Payee:      ic.Settings.Correction.Payee,
		CategoryID: categoryID,
	})
	res, err := c.CheckAndCorrect(ctx, accountID, expected, dryRun)
	if err != nil {
		return BalanceResponse{Error: err.Error()}
	}
	return BalanceResponse{
		Difference:       res.Difference,
		AccountBalance:   res.ActualBalance,
		CorrectionBooked: res.CorrectionCreated,
		CorrectionID:     res.CorrectionID,
		Success:          true,
	}
}
