package importer

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// CSVParser is the configurable generic delimited-text parser.
type CSVParser struct{}

// Format returns the parser name.
func (p *CSVParser) Format() string { return FormatDelimited }

type csvColumns struct {
	date, payee, notes, amount, inflow, outflow int
}

// Parse applies skip counts, header handling and the column mapping.
// The first row with a bad date or amount ends the pass.
func (p *CSVParser) Parse(content []byte, opts Options) Result {
	var res Result

	lines := splitLines(decodeText(content))
	if opts.SkipStartLines < 0 || opts.SkipEndLines < 0 {
		res.addError("invalid skip lines", fmt.Errorf("skip counts must not be negative"))
		return res
	}
	if opts.SkipStartLines+opts.SkipEndLines > len(lines) {
		res.addError("skip lines exceed file length",
			fmt.Errorf("skipping %d+%d of %d lines", opts.SkipStartLines, opts.SkipEndLines, len(lines)))
		return res
	}
	lines = lines[opts.SkipStartLines : len(lines)-opts.SkipEndLines]

	records, err := readDelimited(strings.Join(lines, "\n"), opts.Delimiter)
	if err != nil {
		res.addError("malformed delimited file", err)
		return res
	}

	var header []string
	if opts.HasHeaderRow {
		if len(records) == 0 {
			res.addError("missing header row", fmt.Errorf("no lines left after skipping"))
			return res
		}
		header, records = records[0], records[1:]
	}

	cols, err := mapColumns(header, opts.Columns)
	if err != nil {
		res.addError("column mapping does not match file", err)
		return res
	}

	for i, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		txn, err := csvTransaction(rec, cols, opts)
		if err != nil {
			res.addError(fmt.Sprintf("row %d", i+1), err)
			return res
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res
}

func readDelimited(text, delimiter string) ([][]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = ','
	if delimiter != "" {
		r := []rune(delimiter)
		if len(r) != 1 {
			return nil, fmt.Errorf("delimiter %q must be a single character", delimiter)
		}
		cr.Comma = r[0]
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading delimited text: %w", err)
	}
	return records, nil
}

func mapColumns(header []string, m ColumnMapping) (csvColumns, error) {
	index := func(name string) int {
		name = strings.TrimSpace(name)
		if name == "" {
			return -1
		}
		if header == nil {
			if n, err := strconv.Atoi(name); err == nil && n >= 0 {
				return n
			}
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	cols := csvColumns{
		date:    index(m.Date),
		payee:   index(m.Payee),
		notes:   index(m.Notes),
		amount:  index(m.Amount),
		inflow:  index(m.Inflow),
		outflow: index(m.Outflow),
	}
	if cols.date < 0 {
		return cols, fmt.Errorf("date column %q not found", m.Date)
	}
	if cols.amount < 0 && cols.inflow < 0 && cols.outflow < 0 {
		return cols, fmt.Errorf("no amount, inflow or outflow column found")
	}
	return cols, nil
}

func csvTransaction(rec []string, cols csvColumns, opts Options) (model.Transaction, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, ok := parseDate(field(cols.date), opts.DateFormat)
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid date %q", field(cols.date))
	}
	amt, err := csvAmount(field, cols)
	if err != nil {
		return model.Transaction{}, err
	}

	raw := field(cols.payee)
	payee := raw
	if payee == "" && opts.FallbackMissingPayeeToMemo {
		payee = field(cols.notes)
	}
	core := model.Core{
		Amount:        amt,
		Date:          date,
		Payee:         payee,
		ImportedPayee: raw,
	}
	if opts.ImportNotes {
		core.Notes = field(cols.notes)
	}
	return model.NewTransaction(core), nil
}

// csvAmount reads a signed amount column, or inflow minus outflow.
func csvAmount(field func(int) string, cols csvColumns) (int64, error) {
	if cols.amount >= 0 {
		v, ok := amount.Parse(field(cols.amount))
		if !ok {
			return 0, fmt.Errorf("invalid amount %q", field(cols.amount))
		}
		return v, nil
	}

	var total int64
	if s := field(cols.inflow); s != "" {
		v, ok := amount.Parse(s)
		if !ok {
			return 0, fmt.Errorf("invalid inflow %q", s)
		}
		total += abs(v)
	}
	if s := field(cols.outflow); s != "" {
		v, ok := amount.Parse(s)
		if !ok {
			return 0, fmt.Errorf("invalid outflow %q", s)
		}
		total -= abs(v)
	}
	return total, nil
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
