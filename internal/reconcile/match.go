package reconcile

import (
	"time"

	"github.com/cleared-dev/reconcile/internal/model"
	"github.com/cleared-dev/reconcile/internal/payees"
)

// MatchRule tunes the fallback duplicate rule for records without external ids.
type MatchRule struct {
	DateToleranceDays int
	RequirePayee      bool
}

// DefaultMatchRule requires the same day, amount and payee.
func DefaultMatchRule() MatchRule {
	return MatchRule{RequirePayee: true}
}

// matcher claims existing postings for incoming records. A posting is
// claimed at most once per batch.
type matcher struct {
	rule     MatchRule
	existing []model.Posting
	claimed  []bool
}

func newMatcher(existing []model.Posting, rule MatchRule) *matcher {
	return &matcher{rule: rule, existing: existing, claimed: make([]bool, len(existing))}
}

// claim returns the index of the matched posting, or -1.
func (m *matcher) claim(t model.Transaction) int {
	if t.ExternalID != "" {
		for i, p := range m.existing {
			if !m.claimed[i] && p.ExternalID == t.ExternalID {
				m.claimed[i] = true
				return i
			}
		}
	}

	best, bestGap := -1, 0
	for i, p := range m.existing {
		if m.claimed[i] || !m.fuzzy(t, p) {
			continue
		}
		if gap := dayGap(t.Date, p.Date); best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	if best >= 0 {
		m.claimed[best] = true
	}
	return best
}

// fuzzy applies the fallback rule. It only runs when one side has no external id.
func (m *matcher) fuzzy(t model.Transaction, p model.Posting) bool {
	if t.ExternalID != "" && p.ExternalID != "" {
		return false
	}
	if t.Amount != p.Amount || dayGap(t.Date, p.Date) > m.rule.DateToleranceDays {
		return false
	}
	return !m.rule.RequirePayee || samePayee(t, p)
}

func samePayee(t model.Transaction, p model.Posting) bool {
	if payees.Normalize(t.Payee) == payees.Normalize(p.Payee) {
		return true
	}
	return t.ImportedPayee != "" && payees.Normalize(t.ImportedPayee) == payees.Normalize(p.ImportedPayee)
}

func dayGap(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// fill copies non-empty record fields into empty posting fields and reports
// whether anything the user would see changed. ExternalID and ImportedPayee
// are filled silently.
func fill(p *model.Posting, t model.Transaction) bool {
	material := false
	set := func(dst *string, src string, counts bool) {
		if *dst == "" && src != "" {
			*dst = src
			material = material || counts
		}
	}
	set(&p.Payee, t.Payee, true)
	set(&p.Notes, t.Notes, true)
	set(&p.CategoryID, t.CategoryID, true)
	set(&p.ExternalID, t.ExternalID, false)
	set(&p.ImportedPayee, t.ImportedPayee, false)
	return material
}
