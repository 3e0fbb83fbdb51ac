// Package pipeline wires parsers, reconciliation, routing and balance checks
// into the entry points the CLI calls.
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/cleared-dev/reconcile/internal/categories"
	"github.com/cleared-dev/reconcile/internal/config"
	"github.com/cleared-dev/reconcile/internal/ledger"
	"github.com/cleared-dev/reconcile/internal/payees"
	"github.com/cleared-dev/reconcile/internal/reconcile"
)

// ImportContext is the explicit state of one import run: a settings
// snapshot, the ledger, the category chart and the payee mapping snapshot
// with its write-back.
type ImportContext struct {
	Settings   config.Config
	Ledger     *ledger.Store
	Categories *categories.Service
	Mapping    *payees.Mapping

	// SaveMapping persists Mapping after a commit taught it new entries.
	SaveMapping func(*payees.Mapping) error
}

// Open loads an ImportContext from a data directory. A missing settings file
// means defaults.
func Open(repoRoot string) (*ImportContext, error) {
	cfg, err := config.LoadOrDefault(filepath.Join(repoRoot, config.FileName))
	if err != nil {
		return nil, err
	}

	store, err := ledger.Open(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	cats, err := categories.Load(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	mappingPath := filepath.Join(repoRoot, cfg.Mappings.Path)
	mapping, err := payees.Load(mappingPath)
	if err != nil {
		return nil, err
	}

	return &ImportContext{
		Settings:   *cfg,
		Ledger:     store,
		Categories: cats,
		Mapping:    mapping,
		SaveMapping: func(m *payees.Mapping) error {
			return payees.Save(mappingPath, m)
		},
	}, nil
}

// MatchRule builds the duplicate rule from settings.
func (ic *ImportContext) MatchRule() reconcile.MatchRule {
	return reconcile.MatchRule{
		DateToleranceDays: ic.Settings.Matching.DateToleranceDays,
		RequirePayee:      !ic.Settings.Matching.IgnorePayee,
	}
}

// Matcher returns a payee matcher over the mapping snapshot.
func (ic *ImportContext) Matcher() *payees.Matcher {
	return payees.NewMatcher(ic.Mapping, ic.Categories)
}
