package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/reconcile/internal/categories"
	"github.com/cleared-dev/reconcile/internal/ledger"
	"github.com/cleared-dev/reconcile/internal/model"
	"github.com/cleared-dev/reconcile/internal/payees"
	"github.com/cleared-dev/reconcile/internal/reconcile"
)

var day = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

func rec(ccy string, kind model.Kind, amt int64, payee, extID string) model.Transaction {
	t := model.NewTransaction(model.Core{Amount: amt, Date: day, Payee: payee, ImportedPayee: payee, ExternalID: extID, Currency: ccy})
	t.MultiCurrency = &model.MultiCurrency{Kind: kind}
	return t
}

func exchange(ccy string, amt int64, target string, targetAmt int64, extID string) model.Transaction {
	t := rec(ccy, model.KindExchange, amt, "Exchange", extID)
	t.MultiCurrency.TargetCurrency = target
	t.MultiCurrency.TargetAmount = &targetAmt
	return t
}

func opts() Options {
	return Options{
		Provider:        "Revolut",
		HomeCurrency:    "CHF",
		BankAccountName: "Checking",
		CashAccountName: "Cash",
		CreateTransfers: true,
		MatchRule:       reconcile.DefaultMatchRule(),
	}
}

func open(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func accountID(t *testing.T, s *ledger.Store, name string) int {
	t.Helper()
	acct, ok := s.AccountByName(name)
	require.True(t, ok, name)
	return acct.ID
}

func TestPartitionByCurrency(t *testing.T) {
	parts := partitionByCurrency([]model.Transaction{
		rec("EUR", model.KindExpense, -1, "a", ""),
		rec("", model.KindExpense, -2, "b", ""),
		rec("chf", model.KindExpense, -3, "c", ""),
		rec("EUR", model.KindExpense, -4, "d", ""),
	}, "CHF")

	require.Len(t, parts, 2)
	assert.Equal(t, "EUR", parts[0].currency)
	assert.Len(t, parts[0].records, 2)
	assert.Equal(t, "CHF", parts[1].currency)
	assert.Len(t, parts[1].records, 2)
}

func TestRouteAndImport_CreatesAccountsPerCurrency(t *testing.T) {
	s := open(t)
	r := New(s, nil, opts())
	records := []model.Transaction{
		rec("CHF", model.KindCardPayment, -2340, "Coop", "r1"),
		rec("EUR", model.KindCardPayment, -500, "Bakery", "r2"),
		rec("", model.KindCardPayment, -100, "Kiosk", "r3"),
	}

	res, err := r.RouteAndImport(context.Background(), records, reconcile.Commit)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Revolut CHF", "Revolut EUR"}, res.AccountsCreated)
	assert.Len(t, res.Imported["CHF"].Added, 2)
	assert.Len(t, res.Imported["EUR"].Added, 1)

	for _, p := range s.Postings(accountID(t, s, "Revolut EUR")) {
		assert.Equal(t, "Bakery", p.Payee)
	}

	again, err := r.RouteAndImport(context.Background(), records, reconcile.Commit)
	require.NoError(t, err)
	assert.Empty(t, again.AccountsCreated)
	assert.Empty(t, again.Imported["CHF"].Added)
	assert.Empty(t, again.Imported["EUR"].Added)
	assert.Len(t, s.Accounts().All(), 2)
}

func TestRouteAndImport_ATMLinksCashCounterPosting(t *testing.T) {
	s := open(t)
	res, err := New(s, nil, opts()).RouteAndImport(context.Background(),
		[]model.Transaction{rec("CHF", model.KindATM, -4100, "Cash at Bahnhof", "atm-1")}, reconcile.Commit)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TransfersLinked)
	assert.Contains(t, res.AccountsCreated, "Cash")

	cash := s.Postings(accountID(t, s, "Cash"))
	require.Len(t, cash, 1)
	assert.Equal(t, int64(4100), cash[0].Amount)

	origin, ok := s.Posting(res.Links[0].OriginID)
	require.True(t, ok)
	assert.Equal(t, cash[0].ID, origin.TransferID)
	assert.Equal(t, origin.ID, cash[0].TransferID)
	assert.Empty(t, s.Validate())
}

func TestRouteAndImport_TopupLinksBankAccount(t *testing.T) {
	s := open(t)
	_, _, err := s.FindOrCreateAccount("Checking", "CHF")
	require.NoError(t, err)

	res, err := New(s, nil, opts()).RouteAndImport(context.Background(),
		[]model.Transaction{rec("CHF", model.KindTopup, 50000, "Top-Up", "t-1")}, reconcile.Commit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransfersLinked)
	assert.NotContains(t, res.AccountsCreated, "Checking")

	bank := s.Postings(accountID(t, s, "Checking"))
	require.Len(t, bank, 1)
	assert.Equal(t, int64(-50000), bank[0].Amount)
}

func TestRouteAndImport_ExchangeLegsPairUp(t *testing.T) {
	s := open(t)
	records := []model.Transaction{
		exchange("CHF", -10050, "EUR", 9580, "x-chf"),
		exchange("EUR", 9580, "", -9580, "x-eur"),
	}

	res, err := New(s, nil, opts()).RouteAndImport(context.Background(), records, reconcile.Commit)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TransfersLinked)

	eur := s.Postings(accountID(t, s, "Revolut EUR"))
	require.Len(t, eur, 1, "the imported leg is linked instead of inserting a duplicate")
	chf := s.Postings(accountID(t, s, "Revolut CHF"))
	require.Len(t, chf, 1)
	assert.Equal(t, eur[0].ID, chf[0].TransferID)
	assert.Equal(t, chf[0].ID, eur[0].TransferID)
	assert.Empty(t, s.Validate())
}

func TestRouteAndImport_ExchangeLegsPairInEitherOrder(t *testing.T) {
	s := open(t)
	records := []model.Transaction{
		exchange("EUR", 9580, "", -9580, "x-eur"),
		exchange("CHF", -10050, "EUR", 9580, "x-chf"),
	}

	res, err := New(s, nil, opts()).RouteAndImport(context.Background(), records, reconcile.Commit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransfersLinked)
	assert.Len(t, s.Postings(accountID(t, s, "Revolut EUR")), 1)
}

func TestRouteAndImport_ExchangeInsertsConvertedCounter(t *testing.T) {
	s := open(t)
	res, err := New(s, nil, opts()).RouteAndImport(context.Background(),
		[]model.Transaction{exchange("CHF", -10050, "USD", 11200, "x-1")}, reconcile.Commit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransfersLinked)
	assert.Contains(t, res.AccountsCreated, "Revolut USD")

	usd := s.Postings(accountID(t, s, "Revolut USD"))
	require.Len(t, usd, 1)
	assert.Equal(t, int64(11200), usd[0].Amount)
}

func TestRouteAndImport_UnresolvedTargetStaysPlain(t *testing.T) {
	s := open(t)
	o := opts()
	o.CashAccountName = ""

	res, err := New(s, nil, o).RouteAndImport(context.Background(),
		[]model.Transaction{
			rec("CHF", model.KindATM, -4100, "ATM", "a-1"),
			exchange("CHF", -100, "", 100, "x-1"),
		}, reconcile.Commit)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, res.TransfersLinked)
	assert.Len(t, res.Imported["CHF"].Added, 2)
	for _, p := range s.Postings(accountID(t, s, "Revolut CHF")) {
		assert.Empty(t, p.TransferID)
	}
}

func TestRouteAndImport_TransfersDisabled(t *testing.T) {
	s := open(t)
	o := opts()
	o.CreateTransfers = false

	res, err := New(s, nil, o).RouteAndImport(context.Background(),
		[]model.Transaction{rec("CHF", model.KindATM, -4100, "ATM", "a-1")}, reconcile.Commit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TransfersLinked)
	_, ok := s.AccountByName("Cash")
	assert.False(t, ok)
}

func TestRouteAndImport_PreviewWritesNothing(t *testing.T) {
	s := open(t)
	records := []model.Transaction{
		rec("CHF", model.KindATM, -4100, "ATM", "a-1"),
		rec("EUR", model.KindCardPayment, -500, "Bakery", "r2"),
	}

	res, err := New(s, nil, opts()).RouteAndImport(context.Background(), records, reconcile.Preview)
	require.NoError(t, err)
	assert.Equal(t, []string{"Revolut CHF", "Revolut EUR"}, res.AccountsCreated)
	assert.Len(t, res.Imported["CHF"].Added, 1)
	assert.Equal(t, 0, res.TransfersLinked)
	require.Len(t, res.Partitions, 2)
	assert.True(t, res.Partitions[0].Planned)
	assert.Empty(t, s.Accounts().All())
	assert.Empty(t, s.All())
}

func TestRouteAndImport_AppliesCategories(t *testing.T) {
	s := open(t)
	matcher := payees.NewMatcher(
		payees.NewMapping(payees.Entry{Payee: "Coop", Category: "Food:Groceries"}),
		categories.NewService(categories.DefaultChart()),
	)
	chosen := rec("CHF", model.KindCardPayment, -700, "Coop Pronto", "c-2")
	chosen.CategoryID = "5010"

	res, err := New(s, matcher, opts()).RouteAndImport(context.Background(),
		[]model.Transaction{rec("CHF", model.KindCardPayment, -2340, "coop", "c-1"), chosen}, reconcile.Commit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CategoriesApplied)
	assert.Len(t, res.Proposals, 2)
	assert.Equal(t, "2010", res.Proposals[chosen.BatchID])

	postings := s.Postings(accountID(t, s, "Revolut CHF"))
	require.Len(t, postings, 2)
	assert.Equal(t, "2010", postings[0].CategoryID)
	assert.Equal(t, "5010", postings[1].CategoryID, "a chosen category is kept")
}

func TestRouteAndImport_PartitionErrorsCollected(t *testing.T) {
	s := open(t)
	bad := rec("EUR", model.KindCardPayment, -1, "Broken", "b-1")
	bad.Date = time.Time{}

	res, err := New(s, nil, opts()).RouteAndImport(context.Background(),
		[]model.Transaction{bad, rec("CHF", model.KindCardPayment, -2, "Fine", "f-1")}, reconcile.Commit)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	var rerr *reconcile.Error
	assert.True(t, errors.As(res.Errors[0], &rerr))
	assert.Len(t, res.Imported["CHF"].Added, 1)
}

func TestRouteAndImport_Cancelled(t *testing.T) {
	s := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s, nil, opts()).RouteAndImport(ctx,
		[]model.Transaction{rec("CHF", model.KindCardPayment, -2, "Fine", "f-1")}, reconcile.Commit)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Accounts().All())
}
