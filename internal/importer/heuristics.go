package importer

import (
	"regexp"
	"strings"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// Booking-text heuristics. Each rule is a pure function over the raw text;
// PayeeFromBookingText tries them in table order and falls back to the text
// before the first comma.

type payeeRule struct {
	name    string
	extract func(text string) (string, bool)
}

var payeeRules = []payeeRule{
	{name: "p2p", extract: payeeBeforePhone},
	{name: "card", extract: merchantAfterCode},
}

var (
	phoneRe = regexp.MustCompile(`(?:\+|\b00)\d{2}[\s\d]{8,14}\d|\b0\d{2}\s?\d{3}\s?\d{2}\s?\d{2}\b`)
	cardRe  = regexp.MustCompile(`(?i)\b(?:karte|card|maestro|debit|kartenzahlung|einkauf|bezug)\b\D*?\d[\d*xX]{3,}\s+(.+)`)
	refRe   = regexp.MustCompile(`(?:^|\D)(\d{16})(?:\D|$)`)

	exchangeRe = regexp.MustCompile(`(?:(?i:exchanged\s+to)|→|->|\b(?i:to))\s+([A-Z]{3})\b(?:\s+([\d'.,]+))?`)
)

// p2pPrefixes are leading words of peer-to-peer lines that are not part of the name.
var p2pPrefixes = map[string]bool{
	"twint": true, "gutschrift": true, "belastung": true, "zahlung": true,
	"überweisung": true, "von": true, "an": true, "from": true, "to": true,
	"send": true, "money": true, "p2p": true,
}

// PayeeFromBookingText derives a payee from a composite booking text.
func PayeeFromBookingText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for _, r := range payeeRules {
		if payee, ok := r.extract(text); ok {
			return payee
		}
	}
	if i := strings.Index(text, ","); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func payeeBeforePhone(text string) (string, bool) {
	loc := phoneRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	words := strings.Fields(strings.NewReplacer(":", " ", ",", " ").Replace(text[:loc[0]]))
	for len(words) > 0 && p2pPrefixes[strings.ToLower(words[0])] {
		words = words[1:]
	}
	name := strings.Trim(strings.Join(words, " "), " -;")
	return name, name != ""
}

func merchantAfterCode(text string) (string, bool) {
	m := cardRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	merchant := m[1]
	if i := strings.Index(merchant, ","); i >= 0 {
		merchant = merchant[:i]
	}
	merchant = strings.TrimSpace(merchant)
	return merchant, merchant != ""
}

// ExtractReference returns the first 16-digit reference found in any of texts.
func ExtractReference(texts ...string) string {
	for _, t := range texts {
		if m := refRe.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	}
	return ""
}

// ParseExchange reads the target currency and converted amount from an
// exchange description. The target amount always carries the opposite sign
// of src and falls back to its inverse when the text has no amount. The
// first currency-like token wins when there are several.
func ParseExchange(description string, src int64) (currency string, target int64) {
	target = -src
	m := exchangeRe.FindStringSubmatch(description)
	if m == nil {
		return "", target
	}
	currency = m[1]
	if m[2] == "" {
		return currency, target
	}
	v, ok := amount.Parse(strings.TrimRight(m[2], ".,"))
	if !ok {
		return currency, target
	}
	if v < 0 {
		v = -v
	}
	if src > 0 {
		v = -v
	}
	return currency, v
}

// ClassifyRevolutType maps a Revolut type column to a record kind.
func ClassifyRevolutType(typ, description string) model.Kind {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case "TOPUP":
		return model.KindTopup
	case "EXCHANGE":
		return model.KindExchange
	case "ATM":
		return model.KindATM
	case "CARD_PAYMENT":
		return model.KindCardPayment
	case "TRANSFER":
		if strings.Contains(strings.ToLower(description), "swift") {
			return model.KindSwiftTransfer
		}
	}
	return model.KindExpense
}

// commonDateLayouts are tried in order when no explicit layout is set.
var commonDateLayouts = []string{
	model.DateFormat,
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"2006/01/02",
	"20060102",
}

// parseDate parses s with layout, or with the common layouts when layout is empty.
func parseDate(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if layout != "" {
		t, err := time.Parse(layout, s)
		return t, err == nil
	}
	for _, l := range commonDateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
