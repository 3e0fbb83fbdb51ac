package payees

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// legalForms are company suffixes that say nothing about who the payee is.
var legalForms = map[string]bool{
	"ag": true, "gmbh": true, "sa": true, "sàrl": true, "sarl": true,
	"ltd": true, "llc": true, "inc": true, "kg": true, "se": true,
}

// Normalize composes Unicode, folds case and collapses whitespace so payee
// texts from different exports compare equal.
func Normalize(s string) string {
	s = folder.String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores two payees by shared words: the size of the word-set
// intersection over the size of the smaller set. Legal-form words such as
// "AG" or "GmbH" are ignored unless a payee consists of nothing else.
// Empty inputs score 0.
func Similarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return float64(shared) / float64(min(len(wa), len(wb)))
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(Normalize(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if !legalForms[strings.Trim(w, ".")] {
			set[w] = true
		}
	}
	if len(set) == 0 {
		for _, w := range words {
			set[w] = true
		}
	}
	return set
}
