package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/reconcile/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestParseFile_Migros(t *testing.T) {
	res := ParseFile("testdata/migros.csv", DefaultOptions())

	require.NotNil(t, res.Metadata)
	require.NotNil(t, res.Metadata.BankSaldo)
	assert.Equal(t, int64(123456), *res.Metadata.BankSaldo)
	assert.Equal(t, "migros", res.Metadata.BankFormat)

	require.Len(t, res.Transactions, 4)
	require.Len(t, res.Errors, 1, "the row with a broken date is skipped")
	assert.Contains(t, res.Errors[0].Internal, "xx.01.25")

	p2p := res.Transactions[0]
	assert.Equal(t, "Hans Muster", p2p.Payee)
	assert.Equal(t, int64(2500), p2p.Amount)
	assert.Equal(t, date(2025, 1, 3), p2p.Date)
	assert.Equal(t, "Pizza", p2p.Notes)
	assert.True(t, p2p.Selected)

	card := res.Transactions[1]
	assert.Equal(t, "Migros Zürich Altstetten", card.Payee)
	assert.Equal(t, "4711000012345678", card.ExternalID)
	assert.Equal(t, int64(-5430), card.Amount)

	assert.Equal(t, "Gutschrift Lohn Acme AG", res.Transactions[2].Payee)
	assert.Equal(t, int64(520000), res.Transactions[2].Amount)
	assert.Equal(t, int64(-185000), res.Transactions[3].Amount)
	assert.Nil(t, res.Transactions[3].MultiCurrency)
}

func TestParseFile_SaldoInSameCell(t *testing.T) {
	content := "Saldo: CHF 1'234.56\nDatum;Buchungstext;Betrag;Valuta\n01.02.2025;Bezug Bancomat, Bern;-100,00;01.02.2025\n"
	res := DefaultRegistry().ParseContent("x.csv", []byte(content), DefaultOptions())

	require.Empty(t, res.Errors)
	require.NotNil(t, res.Metadata.BankSaldo)
	assert.Equal(t, int64(123456), *res.Metadata.BankSaldo)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, int64(-10000), res.Transactions[0].Amount)
	assert.Equal(t, "Bezug Bancomat, Bern", res.Transactions[0].Notes, "4-column rows keep the booking text as notes")
}

func TestParseFile_MigrosUnsupportedLayout(t *testing.T) {
	content := "Datum;Text;Betrag\n01.02.2025;x;1.00\n"
	res := DefaultRegistry().ParseContent("x.csv", []byte(content), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "unsupported column layout", res.Errors[0].Message)
	assert.Empty(t, res.Transactions)
}

func TestParseFile_MigrosRunningBalanceLayout(t *testing.T) {
	res := ParseFile("testdata/migros7.csv", DefaultOptions())

	require.Empty(t, res.Errors)
	require.NotNil(t, res.Metadata)
	assert.Nil(t, res.Metadata.BankSaldo, "the Saldo column is a running balance, not the closing balance")

	require.Len(t, res.Transactions, 2)
	assert.Equal(t, int64(520000), res.Transactions[0].Amount)
	assert.Equal(t, "Januar", res.Transactions[0].Notes)
	assert.Equal(t, int64(-5430), res.Transactions[1].Amount)
	assert.Equal(t, "4711000012345678", res.Transactions[1].ExternalID)
	assert.Equal(t, date(2025, 1, 6), res.Transactions[1].Date)
}

func TestParse_ForcedDialectNamesTheBank(t *testing.T) {
	opts := DefaultOptions()
	opts.SwissBankFormat = SubFormatA
	res := ParseFile("testdata/revolut.csv", opts)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "not a Migros export", res.Errors[0].Message)

	opts.SwissBankFormat = SubFormatB
	res = ParseFile("testdata/generic.csv", opts)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "not a Revolut export", res.Errors[0].Message)
}

func TestParseFile_Revolut(t *testing.T) {
	res := ParseFile("testdata/revolut.csv", DefaultOptions())
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 6, "pending and reverted rows are dropped")
	assert.Equal(t, []string{"CHF", "EUR", "USD"}, res.Metadata.Currencies)
	assert.Equal(t, "revolut", res.Metadata.BankFormat)

	topup := res.Transactions[0]
	assert.Equal(t, model.KindTopup, topup.Kind())
	assert.Equal(t, int64(50000), topup.Amount)
	assert.Equal(t, "CHF", topup.Currency)
	assert.Equal(t, "revolut:2025-01-02 09:15:00:CHF:500.00", topup.ExternalID)
	assert.Equal(t, date(2025, 1, 2), topup.Date)

	assert.Equal(t, model.KindCardPayment, res.Transactions[1].Kind())

	exchange := res.Transactions[2]
	assert.Equal(t, model.KindExchange, exchange.Kind())
	assert.Equal(t, int64(-10050), exchange.Amount, "fee is subtracted")
	assert.Equal(t, "EUR", exchange.MultiCurrency.TargetCurrency)
	require.NotNil(t, exchange.MultiCurrency.TargetAmount)
	assert.Equal(t, int64(9580), *exchange.MultiCurrency.TargetAmount)

	incoming := res.Transactions[3]
	assert.Equal(t, "", incoming.MultiCurrency.TargetCurrency)
	assert.Equal(t, int64(-9580), *incoming.MultiCurrency.TargetAmount)

	atm := res.Transactions[4]
	assert.Equal(t, model.KindATM, atm.Kind())
	assert.Equal(t, int64(-4100), atm.Amount)

	assert.Equal(t, model.KindSwiftTransfer, res.Transactions[5].Kind())
}

func TestParseFile_RevolutTabs(t *testing.T) {
	res := ParseFile("testdata/revolut.tsv", DefaultOptions())
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "Migros", res.Transactions[0].Payee)
	assert.Equal(t, int64(-1250), res.Transactions[0].Amount)
}

func TestParseFile_QIF(t *testing.T) {
	opts := DefaultOptions()
	opts.FallbackMissingPayeeToMemo = true
	res := ParseFile("testdata/bank.qif", opts)

	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, date(2025, 1, 3), res.Transactions[0].Date)
	assert.Equal(t, int64(-400), res.Transactions[0].Amount)
	assert.Equal(t, "GITHUB", res.Transactions[0].Payee)
	assert.Equal(t, "Pro plan", res.Transactions[0].Notes)
	assert.Equal(t, int64(125000), res.Transactions[1].Amount)
	assert.Equal(t, date(2025, 1, 15), res.Transactions[1].Date)
	assert.Equal(t, "Coffee beans", res.Transactions[2].Payee)
	assert.Equal(t, "", res.Transactions[2].ImportedPayee)
	assert.Equal(t, int64(-2000), res.Transactions[2].Amount)
}

func TestParseFile_QIFStopsAtFirstBadRecord(t *testing.T) {
	content := "!Type:Bank\nD01/03/2025\nT-4.00\n^\nD01/04/2025\nTabc\n^\nD01/05/2025\nT1.00\n^\n"
	res := DefaultRegistry().ParseContent("x.qif", []byte(content), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Internal, "invalid amount")
	assert.Len(t, res.Transactions, 1)
}

func TestParseFile_OFX(t *testing.T) {
	res := ParseFile("testdata/statement.ofx", DefaultOptions())
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 2)

	first := res.Transactions[0]
	assert.Equal(t, date(2025, 1, 5), first.Date)
	assert.Equal(t, int64(-4250), first.Amount)
	assert.Equal(t, "F-0001", first.ExternalID)
	assert.Equal(t, "Coop Pronto", first.Payee)
	assert.Equal(t, "Card 1234", first.Notes)
	assert.Equal(t, "CHF", first.Currency)

	assert.Equal(t, "Acme & Co", res.Transactions[1].Payee)
	assert.Equal(t, int64(350000), res.Transactions[1].Amount)

	require.NotNil(t, res.Metadata)
	assert.Equal(t, int64(1234567), *res.Metadata.BankSaldo)
}

func TestParseFile_OFXRejectsOtherContent(t *testing.T) {
	res := DefaultRegistry().ParseContent("x.qfx", []byte("hello"), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Empty(t, res.Transactions)
}

func TestParseFile_CAMT(t *testing.T) {
	res := ParseFile("testdata/camt053.xml", DefaultOptions())
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 2)

	debit := res.Transactions[0]
	assert.Equal(t, int64(-4975), debit.Amount)
	assert.Equal(t, "Swisscom AG", debit.Payee)
	assert.Equal(t, "Rechnung Januar", debit.Notes)
	assert.Equal(t, "REF-100", debit.ExternalID)
	assert.Equal(t, "CHF", debit.Currency)
	assert.Equal(t, date(2025, 1, 10), debit.Date)

	credit := res.Transactions[1]
	assert.Equal(t, int64(20000), credit.Amount)
	assert.Equal(t, "Erika Beispiel", credit.Payee)
	assert.Equal(t, date(2025, 1, 20), credit.Date)

	require.NotNil(t, res.Metadata)
	assert.Equal(t, int64(115025), *res.Metadata.BankSaldo)
}

func TestParseContent_CAMTLatin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<Document><BkToCstmrStmt><Stmt><Acct><Ccy>CHF</Ccy></Acct><Ntry>" +
		"<Amt Ccy=\"CHF\">12.50</Amt><CdtDbtInd>DBIT</CdtDbtInd><BookgDt><Dt>2025-01-10</Dt></BookgDt>" +
		"<NtryDtls><TxDtls><RltdPties><Cdtr><Nm>B\xe4ckerei M\xfcller</Nm></Cdtr></RltdPties></TxDtls></NtryDtls>" +
		"</Ntry></Stmt></BkToCstmrStmt></Document>"

	res := DefaultRegistry().ParseContent("stmt.xml", []byte(doc), DefaultOptions())
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "Bäckerei Müller", res.Transactions[0].Payee)
	assert.Equal(t, int64(-1250), res.Transactions[0].Amount)
}

func TestParseContent_CAMTUnknownCharset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"x-no-such-charset\"?><Document/>"
	res := DefaultRegistry().ParseContent("stmt.xml", []byte(doc), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "malformed CAMT document", res.Errors[0].Message)
	assert.Contains(t, res.Errors[0].Internal, "x-no-such-charset")
}

func TestParseFile_CAMTMalformed(t *testing.T) {
	res := DefaultRegistry().ParseContent("x.xml", []byte("<Document><BkToCstmrStmt>"), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "malformed CAMT document", res.Errors[0].Message)
}

func TestParseFile_GenericCSV(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipStartLines = 1
	opts.SkipEndLines = 1
	opts.FallbackMissingPayeeToMemo = true

	res := ParseFile("testdata/generic.csv", opts)
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, "GitHub", res.Transactions[0].Payee)
	assert.Equal(t, "Interest", res.Transactions[1].Payee)
	assert.Equal(t, int64(125), res.Transactions[1].Amount)
	assert.Equal(t, int64(-185000), res.Transactions[2].Amount)
	assert.Nil(t, res.Metadata)
}

func TestParseFile_GenericCSVWithoutNotes(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipStartLines = 1
	opts.SkipEndLines = 1
	opts.ImportNotes = false

	res := ParseFile("testdata/generic.csv", opts)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, "", res.Transactions[0].Notes)
	assert.Equal(t, "", res.Transactions[1].Payee)
}

func TestParseFile_GenericCSVSkipTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipStartLines = 5
	opts.SkipEndLines = 2

	res := ParseFile("testdata/generic.csv", opts)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "skip lines exceed file length", res.Errors[0].Message)
	assert.Empty(t, res.Transactions)
}

func TestParseFile_GenericCSVStopsAtFirstBadRow(t *testing.T) {
	content := "date,payee,amount\n2025-01-01,A,1.00\n2025-13-45,B,2.00\n2025-01-03,C,3.00\n"
	res := DefaultRegistry().ParseContent("x.csv", []byte(content), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "row 2", res.Errors[0].Message)
	assert.Len(t, res.Transactions, 1)
}

func TestParseFile_GenericCSVPositionalInflowOutflow(t *testing.T) {
	opts := DefaultOptions()
	opts.HasHeaderRow = false
	opts.Delimiter = ";"
	opts.DateFormat = "02/01/2006"
	opts.Columns = ColumnMapping{Date: "0", Payee: "1", Inflow: "2", Outflow: "3"}

	content := "03/01/2025;Shop;;12.50\n04/01/2025;Refund;3.00;\n"
	res := DefaultRegistry().ParseContent("x.csv", []byte(content), opts)
	require.Empty(t, res.Errors)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, int64(-1250), res.Transactions[0].Amount)
	assert.Equal(t, date(2025, 1, 3), res.Transactions[0].Date)
	assert.Equal(t, int64(300), res.Transactions[1].Amount)
}

func TestParseFile_ForcedSubFormatOff(t *testing.T) {
	opts := DefaultOptions()
	opts.SwissBankFormat = ""
	res := ParseFile("testdata/migros.csv", opts)
	require.NotEmpty(t, res.Errors, "generic parser cannot map the Swiss header")
	assert.Empty(t, res.Transactions)
}

func TestParseFile_InvalidFileType(t *testing.T) {
	res := DefaultRegistry().ParseContent("statement.pdf", []byte("%PDF"), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "invalid file type", res.Errors[0].Message)
	assert.Empty(t, res.Transactions)
	assert.Nil(t, res.Metadata)
}

func TestParseFile_Missing(t *testing.T) {
	res := ParseFile(filepath.Join(t.TempDir(), "nope.csv"), DefaultOptions())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "could not read file", res.Errors[0].Message)
}

func TestDecodeText_Windows1252(t *testing.T) {
	assert.Equal(t, "Zürich", decodeText([]byte("Z\xfcrich")))
	assert.Equal(t, "abc", decodeText([]byte("\xef\xbb\xbfabc")))
}

func TestRegistry_GetCaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.Get("QIF"))
	assert.NotNil(t, r.Get("Migros"))
	assert.Nil(t, r.Get("chase"))
	assert.Panics(t, func() { r.Register(&CSVParser{}) })
}

func TestScanAndMarkProcessed(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "import")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"b.qif", "a.CSV", "notes.txt", "c.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := Scan(root)
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.CSV", "b.qif", "c.xml"}, names)

	require.NoError(t, MarkProcessed(root, "a.CSV"))
	_, err = os.Stat(filepath.Join(root, "import", "processed", "a.CSV"))
	assert.NoError(t, err)

	files, err = Scan(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestScan_NoImportDir(t *testing.T) {
	files, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, files)
}
