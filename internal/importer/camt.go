package importer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// CAMTParser parses ISO 20022 camt.052/053/054 bank-to-customer documents.
type CAMTParser struct{}

// closingBooked is the balance type reported as BankSaldo.
const closingBooked = "CLBD"

type camtDocument struct {
	Statements    []camtStatement `xml:"BkToCstmrStmt>Stmt"`
	Reports       []camtStatement `xml:"BkToCstmrAcctRpt>Rpt"`
	Notifications []camtStatement `xml:"BkToCstmrDbtCdtNtfctn>Ntfctn"`
}

type camtStatement struct {
	Currency string        `xml:"Acct>Ccy"`
	Balances []camtBalance `xml:"Bal"`
	Entries  []camtEntry   `xml:"Ntry"`
}

type camtBalance struct {
	Code      string     `xml:"Tp>CdOrPrtry>Cd"`
	Amount    camtAmount `xml:"Amt"`
	CdtDbtInd string     `xml:"CdtDbtInd"`
}

type camtAmount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"Ccy,attr"`
}

type camtDate struct {
	Date     string `xml:"Dt"`
	DateTime string `xml:"DtTm"`
}

type camtEntry struct {
	Amount      camtAmount      `xml:"Amt"`
	CdtDbtInd   string          `xml:"CdtDbtInd"`
	BookingDate camtDate        `xml:"BookgDt"`
	ValueDate   camtDate        `xml:"ValDt"`
	Ref         string          `xml:"AcctSvcrRef"`
	Info        string          `xml:"AddtlNtryInf"`
	Details     []camtTxDetails `xml:"NtryDtls>TxDtls"`
}

type camtTxDetails struct {
	Ref          string   `xml:"Refs>AcctSvcrRef"`
	Creditor     string   `xml:"RltdPties>Cdtr>Nm"`
	CreditorPty  string   `xml:"RltdPties>Cdtr>Pty>Nm"`
	Debtor       string   `xml:"RltdPties>Dbtr>Nm"`
	DebtorPty    string   `xml:"RltdPties>Dbtr>Pty>Nm"`
	Unstructured []string `xml:"RmtInf>Ustrd"`
	Info         string   `xml:"AddtlTxInf"`
}

// charsetReader decodes documents declared in a non-UTF-8 encoding such as
// ISO-8859-1 or windows-1252.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q not supported", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Format returns the parser name.
func (p *CAMTParser) Format() string { return FormatCAMT }

// Parse decodes the document. Entries with a bad date or amount are skipped.
func (p *CAMTParser) Parse(content []byte, opts Options) Result {
	var res Result
	var doc camtDocument
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		res.addError("malformed CAMT document", err)
		return res
	}

	stmts := append(append(doc.Statements, doc.Reports...), doc.Notifications...)
	if len(stmts) == 0 {
		res.addError("malformed CAMT document", fmt.Errorf("no statements, reports or notifications"))
		return res
	}

	for _, stmt := range stmts {
		for i, e := range stmt.Entries {
			txn, err := camtTransaction(e, stmt.Currency, opts)
			if err != nil {
				res.addError(fmt.Sprintf("skipped entry %d", i+1), err)
				continue
			}
			res.Transactions = append(res.Transactions, txn)
		}
		for _, b := range stmt.Balances {
			if b.Code != closingBooked {
				continue
			}
			bal, ok := camtSigned(b.Amount.Value, b.CdtDbtInd)
			if !ok {
				res.addError("invalid closing balance", fmt.Errorf("amount %q", b.Amount.Value))
				continue
			}
			res.Metadata = &Metadata{BankSaldo: &bal}
		}
	}
	return res
}

func camtTransaction(e camtEntry, acctCurrency string, opts Options) (model.Transaction, error) {
	amt, ok := camtSigned(e.Amount.Value, e.CdtDbtInd)
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid amount %q", e.Amount.Value)
	}
	date, ok := camtParseDate(e.BookingDate)
	if !ok {
		if date, ok = camtParseDate(e.ValueDate); !ok {
			return model.Transaction{}, fmt.Errorf("missing booking date")
		}
	}

	var d camtTxDetails
	if len(e.Details) > 0 {
		d = e.Details[0]
	}

	// Debits name the creditor, credits name the debtor.
	raw := firstNonEmpty(d.Debtor, d.DebtorPty)
	if amt < 0 {
		raw = firstNonEmpty(d.Creditor, d.CreditorPty)
	}
	notes := firstNonEmpty(strings.Join(d.Unstructured, " "), d.Info, e.Info)
	payee := raw
	if payee == "" {
		payee = e.Info
	}
	if payee == "" && opts.FallbackMissingPayeeToMemo {
		payee = notes
	}

	core := model.Core{
		Amount:        amt,
		Date:          date,
		Payee:         payee,
		ImportedPayee: raw,
		ExternalID:    firstNonEmpty(e.Ref, d.Ref),
		Currency:      firstNonEmpty(e.Amount.Currency, acctCurrency),
	}
	if opts.ImportNotes {
		core.Notes = notes
	}
	return model.NewTransaction(core), nil
}

func camtSigned(value, indicator string) (int64, bool) {
	v, ok := amount.Parse(value)
	if !ok {
		return 0, false
	}
	if strings.EqualFold(strings.TrimSpace(indicator), "DBIT") {
		v = -v
	}
	return v, true
}

func camtParseDate(d camtDate) (time.Time, bool) {
	s := firstNonEmpty(d.Date, d.DateTime)
	if len(s) < len(model.DateFormat) {
		return time.Time{}, false
	}
	t, err := time.Parse(model.DateFormat, s[:len(model.DateFormat)])
	return t, err == nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
