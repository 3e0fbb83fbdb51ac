package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/reconcile/internal/ledger"
	"github.com/cleared-dev/reconcile/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func record(d time.Time, amt int64, payee, extID string) model.Transaction {
	return model.NewTransaction(model.Core{Amount: amt, Date: d, Payee: payee, ImportedPayee: payee, ExternalID: extID})
}

func setup(t *testing.T) (*ledger.Store, int) {
	t.Helper()
	s, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	acct, _, err := s.FindOrCreateAccount("Checking", "CHF")
	require.NoError(t, err)
	return s, acct.ID
}

func batch() []model.Transaction {
	return []model.Transaction{
		record(date(2025, 1, 3), -400, "GitHub", "ext-1"),
		record(date(2025, 1, 5), -2340, "Coop", ""),
	}
}

func TestReconcile_CommitNew(t *testing.T) {
	s, acct := setup(t)
	e := NewEngine(s, DefaultMatchRule())

	res, err := e.Reconcile(context.Background(), acct, batch(), Commit)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-001", "2025-01-002"}, res.Added)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Inserted, 2)

	postings := s.Postings(acct)
	require.Len(t, postings, 2)
	assert.True(t, postings[0].Cleared)
	assert.Equal(t, "ext-1", postings[0].ExternalID)
	assert.Equal(t, int64(-2340), postings[1].Amount)
}

func TestReconcile_SecondImportAddsNothing(t *testing.T) {
	s, acct := setup(t)
	e := NewEngine(s, DefaultMatchRule())

	_, err := e.Reconcile(context.Background(), acct, batch(), Commit)
	require.NoError(t, err)

	res, err := e.Reconcile(context.Background(), acct, batch(), Commit)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Updated)
	for _, txn := range res.Transactions {
		assert.True(t, txn.Verdict.Existing, txn.Payee)
		assert.True(t, txn.Verdict.Ignored, txn.Payee)
	}
	assert.Len(t, s.Postings(acct), 2)
}

func TestReconcile_ExternalIDWinsOverFields(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 1), Amount: -100, Payee: "Old", ExternalID: "ref-9", Cleared: true})
	require.NoError(t, err)

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct,
		[]model.Transaction{record(date(2025, 1, 4), -150, "New", "ref-9")}, Preview)
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Verdict.Existing)
	assert.Equal(t, "2025-01-001", res.Transactions[0].Verdict.MatchedID)
}

func TestReconcile_DifferentExternalIDsNeverFuzzyMatch(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 3), Amount: -400, Payee: "GitHub", ExternalID: "a"})
	require.NoError(t, err)

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct,
		[]model.Transaction{record(date(2025, 1, 3), -400, "GitHub", "b")}, Preview)
	require.NoError(t, err)
	assert.False(t, res.Transactions[0].Verdict.Existing)
	assert.Len(t, res.Added, 1)
}

func TestReconcile_FuzzyMatchFillsEmptyFields(t *testing.T) {
	s, acct := setup(t)
	manual, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 5), Amount: -2340, Payee: "COOP"})
	require.NoError(t, err)

	rec := record(date(2025, 1, 5), -2340, "coop", "")
	rec.Notes = "Groceries run"
	rec.CategoryID = "2010"

	e := NewEngine(s, DefaultMatchRule())
	preview, err := e.Reconcile(context.Background(), acct, []model.Transaction{rec}, Preview)
	require.NoError(t, err)
	assert.Equal(t, []string{manual.ID}, preview.Updated)
	require.Len(t, preview.UpdatedPreview, 1)
	assert.Equal(t, "", preview.UpdatedPreview[0].Existing.Notes)
	got, _ := s.Posting(manual.ID)
	assert.Equal(t, "", got.Notes, "preview writes nothing")

	res, err := e.Reconcile(context.Background(), acct, []model.Transaction{rec}, Commit)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{manual.ID}, res.Updated)

	got, _ = s.Posting(manual.ID)
	assert.Equal(t, "COOP", got.Payee, "existing values are never overwritten")
	assert.Equal(t, "Groceries run", got.Notes)
	assert.Equal(t, "2010", got.CategoryID)
	assert.Equal(t, "coop", got.ImportedPayee)
}

func TestReconcile_ClearedMatchIsIgnored(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 5), Amount: -2340, Payee: "Coop", Cleared: true})
	require.NoError(t, err)

	rec := record(date(2025, 1, 5), -2340, "Coop", "")
	rec.Notes = "would fill"
	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, []model.Transaction{rec}, Commit)
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Verdict.Ignored)
	assert.Empty(t, res.Updated)
}

func TestReconcile_DateTolerance(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 5), Amount: -2340, Payee: "Coop"})
	require.NoError(t, err)
	recs := []model.Transaction{record(date(2025, 1, 6), -2340, "Coop", "")}

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)
	assert.False(t, res.Transactions[0].Verdict.Existing)

	res, err = NewEngine(s, MatchRule{DateToleranceDays: 1, RequirePayee: true}).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Verdict.Existing)
}

func TestReconcile_PayeeOptional(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 5), Amount: -2340, Payee: "Coop"})
	require.NoError(t, err)
	recs := []model.Transaction{record(date(2025, 1, 5), -2340, "COOP PRONTO 123", "")}

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)
	assert.False(t, res.Transactions[0].Verdict.Existing)

	res, err = NewEngine(s, MatchRule{}).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Verdict.Existing)
}

func TestReconcile_EachPostingClaimedOnce(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 5), Amount: -500, Payee: "SBB", Cleared: true})
	require.NoError(t, err)

	recs := []model.Transaction{
		record(date(2025, 1, 5), -500, "SBB", ""),
		record(date(2025, 1, 5), -500, "SBB", ""),
	}
	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Commit)
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Len(t, s.Postings(acct), 2)
}

func TestReconcile_TombstoneBlocksReimport(t *testing.T) {
	s, acct := setup(t)
	p, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 3), Amount: -400, Payee: "GitHub", ExternalID: "ext-1"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(p.ID))

	rec := record(date(2025, 1, 3), -400, "GitHub", "ext-1")
	rec.ForceAdd = true
	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, []model.Transaction{rec}, Commit)
	require.NoError(t, err)
	assert.True(t, res.Transactions[0].Verdict.Tombstone)
	assert.Empty(t, res.Added)
	assert.Len(t, s.Postings(acct), 1)
}

func TestReconcile_ForceAddInsertsNew(t *testing.T) {
	s, acct := setup(t)
	_, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, batch(), Commit)
	require.NoError(t, err)

	again := batch()
	again[1].ForceAdd = true
	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, again, Commit)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-003"}, res.Added)
	assert.Len(t, s.Postings(acct), 3)

	first, _ := s.Posting("2025-01-002")
	assert.Equal(t, "Coop", first.Payee, "the matched posting is left alone")
}

func TestReconcile_UnselectedSkipped(t *testing.T) {
	s, acct := setup(t)
	recs := batch()
	recs[0].Selected = false

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Commit)
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Transactions, 2)
}

func TestReconcile_PreviewHasNoSideEffects(t *testing.T) {
	s, acct := setup(t)
	recs := batch()

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)
	assert.Equal(t, []string{recs[0].BatchID.String(), recs[1].BatchID.String()}, res.Added)
	assert.Nil(t, res.Inserted)
	assert.Empty(t, s.Postings(acct))
}

func TestReconcile_DisplayOrder(t *testing.T) {
	s, acct := setup(t)
	_, err := s.Insert(model.Posting{AccountID: acct, Date: date(2025, 1, 1), Amount: -1, Payee: "A", Cleared: true})
	require.NoError(t, err)

	recs := []model.Transaction{
		record(date(2025, 1, 1), -1, "A", ""),
		record(date(2025, 1, 2), -2, "B", ""),
		record(date(2025, 1, 3), -3, "C", ""),
	}
	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Preview)
	require.NoError(t, err)

	var order []string
	for _, txn := range res.Transactions {
		order = append(order, txn.Payee)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
}

func TestReconcile_UnknownAccount(t *testing.T) {
	s, _ := setup(t)
	_, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), 42, batch(), Commit)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindUnknownAccount, rerr.Kind)
	assert.Equal(t, 42, rerr.AccountID)
}

func TestReconcile_InvalidRecordCollected(t *testing.T) {
	s, acct := setup(t)
	recs := batch()
	recs[0].Date = time.Time{}

	res, err := NewEngine(s, DefaultMatchRule()).Reconcile(context.Background(), acct, recs, Commit)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)

	var rerr *Error
	require.True(t, errors.As(res.Errors[0], &rerr))
	assert.Equal(t, KindInvalidRecord, rerr.Kind)
	assert.Equal(t, 0, rerr.Index)
	assert.Len(t, res.Added, 1)
}

func TestReconcile_CancelledCommitWritesNothing(t *testing.T) {
	s, acct := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(s, DefaultMatchRule()).Reconcile(ctx, acct, batch(), Commit)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Postings(acct))
}

func TestPreviewPlanned(t *testing.T) {
	s, _ := setup(t)
	res, err := NewEngine(s, DefaultMatchRule()).PreviewPlanned(context.Background(), batch())
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindInvalidRecord, AccountID: 3, Index: 1, Msg: "missing date"}
	assert.Equal(t, "invalid record (account 3, record 2): missing date", e.Error())
	e = &Error{Kind: KindUnknownAccount, AccountID: 3, Index: -1, Msg: "no such account"}
	assert.Equal(t, "unknown account (account 3): no such account", e.Error())
}
