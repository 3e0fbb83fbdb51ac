package importer

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// RevolutParser parses Revolut exports: one row per movement across all of the
// customer's currency pockets.
type RevolutParser struct{}

const revolutCompleted = "COMPLETED"

var revolutRequired = []string{"type", "started date", "description", "amount", "currency", "state"}

// Format returns the parser name.
func (p *RevolutParser) Format() string { return parserRevolut }

// Parse keeps completed rows only and skips bad rows with a per-row error.
func (p *RevolutParser) Parse(content []byte, _ Options) Result {
	res := Result{Metadata: &Metadata{BankFormat: parserRevolut}}
	lines := splitLines(decodeText(content))
	if len(lines) == 0 {
		res.addError("empty file", fmt.Errorf("no header row"))
		return res
	}

	delim := ","
	if strings.Contains(lines[0], "\t") {
		delim = "\t"
	}
	records, err := readDelimited(strings.Join(lines, "\n"), delim)
	if err != nil {
		res.addError("malformed delimited file", err)
		return res
	}
	if len(records) == 0 {
		res.addError("empty file", fmt.Errorf("no header row"))
		return res
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range revolutRequired {
		if _, ok := col[name]; !ok {
			res.addError("not a Revolut export", fmt.Errorf("missing column %q", name))
			return res
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	seen := make(map[string]bool)
	for i, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		if !strings.EqualFold(field(rec, "state"), revolutCompleted) {
			continue
		}

		started := field(rec, "started date")
		date, ok := parseDate(leadingDate(started), model.DateFormat)
		if !ok {
			res.addError(fmt.Sprintf("skipped row %d", i+1), fmt.Errorf("invalid date %q", started))
			continue
		}
		rawAmount := field(rec, "amount")
		amt, ok := amount.Parse(rawAmount)
		if !ok {
			res.addError(fmt.Sprintf("skipped row %d", i+1), fmt.Errorf("invalid amount %q", rawAmount))
			continue
		}
		if s := field(rec, "fee"); s != "" {
			fee, ok := amount.Parse(s)
			if !ok {
				res.addError(fmt.Sprintf("skipped row %d", i+1), fmt.Errorf("invalid fee %q", s))
				continue
			}
			amt -= fee
		}

		ccy := strings.ToUpper(field(rec, "currency"))
		desc := field(rec, "description")
		mc := &model.MultiCurrency{Kind: ClassifyRevolutType(field(rec, "type"), desc)}
		if mc.Kind == model.KindExchange {
			target, targetAmt := ParseExchange(desc, amt)
			mc.TargetCurrency = target
			mc.TargetAmount = &targetAmt
		}

		core := model.Core{
			Amount:        amt,
			Date:          date,
			Payee:         desc,
			ImportedPayee: desc,
			ExternalID:    fmt.Sprintf("revolut:%s:%s:%s", started, ccy, rawAmount),
			Currency:      ccy,
		}
		txn := model.NewTransaction(core)
		txn.MultiCurrency = mc
		res.Transactions = append(res.Transactions, txn)

		if ccy != "" && !seen[ccy] {
			seen[ccy] = true
			res.Metadata.Currencies = append(res.Metadata.Currencies, ccy)
		}
	}
	return res
}

// leadingDate cuts a "2006-01-02 15:04:05" timestamp to its date.
func leadingDate(s string) string {
	if len(s) > len(model.DateFormat) {
		return s[:len(model.DateFormat)]
	}
	return s
}
