package importer

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// OFXParser parses OFX and QFX statements in both SGML and XML dialects.
type OFXParser struct{}

var (
	ofxTagRe     = regexp.MustCompile(`<([A-Za-z0-9.]+)>([^<\r\n]*)`)
	ofxTxnRe     = regexp.MustCompile(`(?is)<STMTTRN>(.*?)(?:</STMTTRN>|<STMTTRN>|</BANKTRANLIST>)`)
	ofxLedgerRe  = regexp.MustCompile(`(?is)<LEDGERBAL>(.*?)(?:</LEDGERBAL>|<AVAILBAL>|</STMTRS>|</CCSTMTRS>)`)
	ofxCurrDefRe = regexp.MustCompile(`(?i)<CURDEF>\s*([A-Za-z]{3})`)
)

// Format returns the parser name.
func (p *OFXParser) Format() string { return FormatOFX }

// Parse extracts every STMTTRN block. Bad records are reported and skipped.
func (p *OFXParser) Parse(content []byte, opts Options) Result {
	var res Result
	text := decodeText(content)
	if !strings.Contains(strings.ToUpper(text), "<OFX>") {
		res.addError("not an OFX document", fmt.Errorf("missing <OFX> element"))
		return res
	}

	currency := ""
	if m := ofxCurrDefRe.FindStringSubmatch(text); m != nil {
		currency = strings.ToUpper(m[1])
	}

	// Resume at the block end so an unclosed SGML record leaves the next tag in place.
	for rest := text; ; {
		loc := ofxTxnRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		block := rest[loc[2]:loc[3]]
		rest = rest[loc[3]:]

		txn, err := ofxTransaction(ofxTags(block), currency, opts)
		if err != nil {
			res.addError("skipped statement transaction", err)
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}

	if m := ofxLedgerRe.FindStringSubmatch(text); m != nil {
		if bal, ok := amount.Parse(ofxTags(m[1])["BALAMT"]); ok {
			res.Metadata = &Metadata{BankSaldo: &bal}
		}
	}
	return res
}

func ofxTags(block string) map[string]string {
	tags := make(map[string]string)
	for _, m := range ofxTagRe.FindAllStringSubmatch(block, -1) {
		name := strings.ToUpper(m[1])
		if _, seen := tags[name]; !seen {
			tags[name] = html.UnescapeString(strings.TrimSpace(m[2]))
		}
	}
	return tags
}

func ofxTransaction(tags map[string]string, currency string, opts Options) (model.Transaction, error) {
	date, err := parseOFXDate(tags["DTPOSTED"])
	if err != nil {
		return model.Transaction{}, err
	}
	amt, ok := amount.Parse(tags["TRNAMT"])
	if !ok {
		return model.Transaction{}, fmt.Errorf("invalid amount %q", tags["TRNAMT"])
	}

	raw := tags["NAME"]
	if raw == "" {
		raw = tags["PAYEE"]
	}
	payee := raw
	if payee == "" && opts.FallbackMissingPayeeToMemo {
		payee = tags["MEMO"]
	}

	core := model.Core{
		Amount:        amt,
		Date:          date,
		Payee:         payee,
		ImportedPayee: raw,
		ExternalID:    tags["FITID"],
		Currency:      currency,
	}
	if opts.ImportNotes {
		core.Notes = tags["MEMO"]
	}
	return model.NewTransaction(core), nil
}

// parseOFXDate reads the leading YYYYMMDD of an OFX datetime.
func parseOFXDate(s string) (time.Time, error) {
	if len(s) < 8 {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse("20060102", s[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
