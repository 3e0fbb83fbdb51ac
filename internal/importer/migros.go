package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// MigrosParser parses Migros Bank exports: a metadata preamble, a "Datum" header
// row and semicolon-separated bookings in one of three column layouts.
type MigrosParser struct{}

// migrosLayout holds field offsets per dialect; -1 means absent.
type migrosLayout struct {
	date, text, notes, ref, amount int
}

// migrosLayouts is keyed by header column count. The 7-column dialect adds
// a running balance between amount and value date.
var migrosLayouts = map[int]migrosLayout{
	4: {date: 0, text: 1, notes: -1, ref: -1, amount: 2},
	6: {date: 0, text: 1, notes: 2, ref: 3, amount: 4},
	7: {date: 0, text: 1, notes: 2, ref: 3, amount: 4},
}

var migrosDateLayouts = []string{"02.01.2006", "02.01.06", "2.1.2006", model.DateFormat}

const saldoLabel = "saldo:"

// Format returns the parser name.
func (p *MigrosParser) Format() string { return parserMigros }

// Parse locates the header, reads the Saldo row from the preamble and
// skips bad rows with a per-row error.
func (p *MigrosParser) Parse(content []byte, opts Options) Result {
	res := Result{Metadata: &Metadata{BankFormat: parserMigros}}
	lines := splitLines(decodeText(content))

	hdr := findMigrosHeader(lines)
	if hdr < 0 {
		res.addError("not a Migros export", fmt.Errorf("no date header row in the first %d lines", sniffLines))
		return res
	}

	delim := migrosDelimiter(lines[hdr])
	preamble, err := readDelimited(strings.Join(lines[:hdr], "\n"), delim)
	if err != nil {
		res.addError("malformed preamble", err)
		return res
	}
	if saldo, found, ok := findSaldo(preamble); found {
		if ok {
			res.Metadata.BankSaldo = &saldo
		} else {
			res.addError("unreadable Saldo row", nil)
		}
	}

	records, err := readDelimited(strings.Join(lines[hdr:], "\n"), delim)
	if err != nil {
		res.addError("malformed bookings", err)
		return res
	}
	cols := len(trimTrailingEmpty(records[0]))
	layout, ok := migrosLayouts[cols]
	if !ok {
		res.addError("unsupported column layout", fmt.Errorf("%d columns", cols))
		return res
	}

	for i, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		txn, err := migrosTransaction(rec, layout, opts)
		if err != nil {
			res.addError(fmt.Sprintf("skipped row %d", i+1), err)
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res
}

func migrosDelimiter(header string) string {
	switch {
	case strings.Contains(header, ";"):
		return ";"
	case strings.Contains(header, "\t"):
		return "\t"
	}
	return ","
}

// findSaldo looks for a "Saldo:" cell. The value is the rest of that cell
// or the next non-empty cell in the row.
func findSaldo(records [][]string) (saldo int64, found, ok bool) {
	for _, rec := range records {
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if len(cell) < len(saldoLabel) || !strings.EqualFold(cell[:len(saldoLabel)], saldoLabel) {
				continue
			}
			value := strings.TrimSpace(cell[len(saldoLabel):])
			for j := i + 1; value == "" && j < len(rec); j++ {
				value = strings.TrimSpace(rec[j])
			}
			v, ok := amount.Parse(value)
			return v, true, ok
		}
	}
	return 0, false, false
}

func migrosTransaction(rec []string, l migrosLayout, opts Options) (model.Transaction, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, ok := parseMigrosDate(field(l.date))
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid date %q", field(l.date))
	}
	amt, ok := amount.Parse(field(l.amount))
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid amount %q", field(l.amount))
	}

	text := field(l.text)
	notes := field(l.notes)
	if l.notes < 0 {
		notes = text
	}
	core := model.Core{
		Amount:        amt,
		Date:          date,
		Payee:         PayeeFromBookingText(text),
		ImportedPayee: text,
		ExternalID:    ExtractReference(field(l.ref), text, notes),
	}
	if opts.ImportNotes {
		core.Notes = notes
	}
	return model.NewTransaction(core), nil
}

func parseMigrosDate(s string) (t time.Time, ok bool) {
	for _, l := range migrosDateLayouts {
		if t, ok = parseDate(s, l); ok {
			return t, true
		}
	}
	return t, false
}

func trimTrailingEmpty(rec []string) []string {
	n := len(rec)
	for n > 0 && strings.TrimSpace(rec[n-1]) == "" {
		n--
	}
	return rec[:n]
}
