// Package payees proposes categories for imported payees and keeps the
// payee-to-category mapping document up to date.
package payees

import (
	"strings"

	"github.com/cleared-dev/reconcile/internal/categories"
)

// Threshold is the minimum fuzzy score for a proposal.
const Threshold = 0.5

// CategoryResolver turns "Group:Category" names into category IDs and back.
type CategoryResolver interface {
	ResolveQualified(qualified string) (string, bool)
	Get(id string) (categories.Category, bool)
}

// Matcher proposes categories from a mapping snapshot.
type Matcher struct {
	mapping  *Mapping
	resolver CategoryResolver
}

// NewMatcher creates a matcher over mapping.
func NewMatcher(mapping *Mapping, resolver CategoryResolver) *Matcher {
	if mapping == nil {
		mapping = NewMapping()
	}
	return &Matcher{mapping: mapping, resolver: resolver}
}

// Mapping returns the mapping the matcher reads and Learn writes.
func (m *Matcher) Mapping() *Mapping { return m.mapping }

// Lookup finds the mapping entry for payee: exact key, then case-insensitive
// key, then the best fuzzy key at or above Threshold. Ties go to the entry
// that comes first in the document.
func (m *Matcher) Lookup(payee string) (Entry, bool) {
	if strings.TrimSpace(payee) == "" {
		return Entry{}, false
	}
	if cat, ok := m.mapping.Get(payee); ok {
		return Entry{Payee: payee, Category: cat}, true
	}

	entries := m.mapping.Entries()
	folded := Normalize(payee)
	for _, e := range entries {
		if Normalize(e.Payee) == folded {
			return e, true
		}
	}

	var best Entry
	bestScore := 0.0
	for _, e := range entries {
		if score := Similarity(payee, e.Payee); score > bestScore {
			best, bestScore = e, score
		}
	}
	if bestScore < Threshold {
		return Entry{}, false
	}
	return best, true
}

// Propose returns the category ID for payee, or false when nothing maps or
// the mapped name does not resolve.
func (m *Matcher) Propose(payee string) (string, bool) {
	e, ok := m.Lookup(payee)
	if !ok || m.resolver == nil {
		return "", false
	}
	return m.resolver.ResolveQualified(e.Category)
}

// Observation is one committed record as the mapping update sees it.
type Observation struct {
	Payee      string
	CategoryID string // chosen by the user or the matcher
	ProposedID string // what Propose returned, "" when nothing matched
}

// Learn updates the mapping after a commit. A payee is recorded when it had
// no proposal or when its chosen category differs from the proposal. Only
// the first observation per payee in a batch counts. It returns the number
// of entries written.
func (m *Matcher) Learn(obs []Observation) int {
	if m.resolver == nil {
		return 0
	}
	seen := make(map[string]bool)
	changed := 0
	for _, o := range obs {
		payee := strings.TrimSpace(o.Payee)
		if payee == "" || o.CategoryID == "" || seen[payee] {
			continue
		}
		seen[payee] = true
		if o.ProposedID != "" && o.ProposedID == o.CategoryID {
			continue
		}
		cat, ok := m.resolver.Get(o.CategoryID)
		if !ok {
			continue
		}
		if cur, exists := m.mapping.Get(payee); exists && cur == cat.Qualified() {
			continue
		}
		m.mapping.Set(payee, cat.Qualified())
		changed++
	}
	return changed
}
