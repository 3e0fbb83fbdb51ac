// Package amount converts human-formatted money strings to integer minor units.
package amount

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits. All supported currencies use cents.
const Scale = 2

var (
	currencyPrefix = regexp.MustCompile(`^(?:[A-Za-z]{2,4}\.?|\p{Sc})\s*`)
	currencySuffix = regexp.MustCompile(`\s*(?:[A-Za-z]{2,4}\.?|\p{Sc})$`)
	groupingChars  = strings.NewReplacer("'", "", "’", "", " ", "", "\u00a0", "", "\u202f", "")
)

// Parse converts strings like "CHF 1'234.56", "(12.00)" or "1.234,50 €" to
// minor units. The last '.' or ',' is the decimal separator when followed by
// one or two digits; every other separator is treated as grouping.
// It returns false when s is not an amount.
func Parse(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	signs := 0
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		signs++
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s, signs = trimSign(s, signs)
	s = currencyPrefix.ReplaceAllString(s, "")
	s = currencySuffix.ReplaceAllString(s, "")
	s, signs = trimSign(s, signs)
	if signs > 1 {
		return 0, false
	}

	s = groupingChars.Replace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return 0, false
		}
	}

	intPart, frac := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		after := s[i+1:]
		if len(after) >= 1 && len(after) <= 2 && !strings.ContainsAny(after, ".,") {
			intPart, frac = s[:i], after
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" && frac == "" {
		return 0, false
	}
	if intPart == "" {
		intPart = "0"
	}

	d, err := decimal.NewFromString(intPart + "." + frac + "0")
	if err != nil {
		return 0, false
	}
	minor, ok := FromDecimal(d)
	if !ok {
		return 0, false
	}
	if signs == 1 {
		minor = -minor
	}
	return minor, true
}

// trimSign strips one leading or trailing '-' / leading '+', counting minus signs.
func trimSign(s string, signs int) (string, int) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "\u2212"):
		_, size := utf8.DecodeRuneInString(s)
		return strings.TrimSpace(s[size:]), signs + 1
	case strings.HasSuffix(s, "-"):
		return strings.TrimSpace(s[:len(s)-1]), signs + 1
	case strings.HasPrefix(s, "+"):
		return strings.TrimSpace(s[1:]), signs
	}
	return s, signs
}

// Decimal converts minor units to a decimal value.
func Decimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Format renders minor units as a plain decimal string, e.g. -1234 -> "-12.34".
func Format(minor int64) string {
	return Decimal(minor).StringFixed(Scale)
}

// FromDecimal converts a decimal to minor units. It returns false when d
// has more precision than Scale allows or does not fit in an int64.
func FromDecimal(d decimal.Decimal) (int64, bool) {
	shifted := d.Shift(Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, false
	}
	n := shifted.BigInt()
	if !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

// ParseExact parses a plain machine-formatted decimal ("12.34", "-5") as
// written by the ledger store.
func ParseExact(s string) (int64, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return FromDecimal(d)
}
