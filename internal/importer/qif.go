package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// QIFParser parses Quicken interchange files.
type QIFParser struct{}

// qifDateLayouts cover the US and ISO variants after apostrophes are normalized.
var qifDateLayouts = []string{"1/2/2006", "1/2/06", model.DateFormat, "2.1.2006", "2.1.06"}

// Format returns the parser name.
func (p *QIFParser) Format() string { return FormatQIF }

type qifRecord struct {
	line   int
	date   string
	amount string
	payee  string
	memo   string
	fields int
}

// Parse reads records terminated by "^". The first bad date or amount ends the pass.
func (p *QIFParser) Parse(content []byte, opts Options) Result {
	var res Result
	var rec qifRecord
	sawHeader := false

	for i, line := range splitLines(decodeText(content)) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] == '!' {
			sawHeader = true
			continue
		}

		code, value := line[0], strings.TrimSpace(line[1:])
		switch code {
		case 'D':
			rec.date = value
		case 'T':
			rec.amount = value
		case 'U':
			if rec.amount == "" {
				rec.amount = value
			}
		case 'P':
			rec.payee = value
		case 'M':
			rec.memo = value
		case '^':
			if rec.fields > 0 {
				txn, err := qifTransaction(rec, opts)
				if err != nil {
					res.addError(fmt.Sprintf("record ending on line %d", i+1), err)
					return res
				}
				res.Transactions = append(res.Transactions, txn)
			}
			rec = qifRecord{}
			continue
		}
		if rec.fields == 0 {
			rec.line = i + 1
		}
		rec.fields++
	}

	if rec.fields > 0 {
		txn, err := qifTransaction(rec, opts)
		if err != nil {
			res.addError(fmt.Sprintf("record starting on line %d", rec.line), err)
			return res
		}
		res.Transactions = append(res.Transactions, txn)
	}

	if !sawHeader && len(res.Transactions) == 0 {
		res.addError("not a QIF file", fmt.Errorf("missing !Type header"))
	}
	return res
}

func qifTransaction(rec qifRecord, opts Options) (model.Transaction, error) {
	date, ok := parseQIFDate(rec.date, opts.DateFormat)
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid date %q", rec.date)
	}
	amt, ok := amount.Parse(rec.amount)
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid amount %q", rec.amount)
	}

	payee := rec.payee
	if payee == "" && opts.FallbackMissingPayeeToMemo {
		payee = rec.memo
	}
	core := model.Core{
		Amount:        amt,
		Date:          date,
		Payee:         payee,
		ImportedPayee: rec.payee,
	}
	if opts.ImportNotes {
		core.Notes = rec.memo
	}
	return model.NewTransaction(core), nil
}

func parseQIFDate(s, layout string) (time.Time, bool) {
	s = strings.ReplaceAll(strings.ReplaceAll(s, "'", "/"), " ", "")
	if layout != "" {
		return parseDate(s, layout)
	}
	for _, l := range qifDateLayouts {
		if t, ok := parseDate(s, l); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
