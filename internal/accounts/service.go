package accounts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cleared-dev/reconcile/internal/model"
)

// ErrEmptyName is returned when an account name is blank.
var ErrEmptyName = errors.New("account name is empty")

// Service provides in-memory lookup over ledger accounts.
type Service struct {
	mu       sync.RWMutex
	accounts []model.Account
	byID     map[int]int
	byName   map[string]int
}

// NewService creates a Service from a slice of accounts.
func NewService(accounts []model.Account) *Service {
	s := &Service{byID: make(map[int]int), byName: make(map[string]int)}
	for _, a := range accounts {
		s.add(a)
	}
	return s
}

func (s *Service) add(a model.Account) {
	s.accounts = append(s.accounts, a)
	s.byID[a.ID] = len(s.accounts) - 1
	s.byName[a.Name] = len(s.accounts) - 1
}

func path(repoRoot string) string {
	return filepath.Join(repoRoot, "accounts", "accounts.csv")
}

// Load reads accounts/accounts.csv from a repo root. A missing file yields an empty Service.
func Load(repoRoot string) (*Service, error) {
	f, err := os.Open(path(repoRoot))
	if errors.Is(err, fs.ErrNotExist) {
		return NewService(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening accounts: %w", err)
	}
	defer f.Close()

	accts, err := ReadAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	return NewService(accts), nil
}

// All returns all accounts.
func (s *Service) All() []model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Account(nil), s.accounts...)
}

// Get returns an account by ID.
func (s *Service) Get(id int) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return model.Account{}, false
	}
	return s.accounts[i], true
}

// Exists reports whether an account ID exists.
func (s *Service) Exists(id int) bool {
	_, ok := s.Get(id)
	return ok
}

// ByName returns the account with exactly this name (case-sensitive).
func (s *Service) ByName(name string) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byName[name]
	if !ok {
		return model.Account{}, false
	}
	return s.accounts[i], true
}

// FindOrCreate returns the account named name, creating it when absent.
// The second result reports whether the account was created.
func (s *Service) FindOrCreate(name, currency string) (model.Account, bool, error) {
	if strings.TrimSpace(name) == "" {
		return model.Account{}, false, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byName[name]; ok {
		return s.accounts[i], false, nil
	}

	maxID := 0
	for _, a := range s.accounts {
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	acct := model.Account{ID: maxID + 1, Name: name, Currency: currency}
	s.add(acct)
	return acct, true, nil
}

// Save writes the accounts to accounts/accounts.csv.
func (s *Service) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, "accounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}

	f, err := os.Create(path(repoRoot))
	if err != nil {
		return fmt.Errorf("creating accounts file: %w", err)
	}
	defer f.Close()

	if err := WriteAccounts(f, s.All()); err != nil {
		return fmt.Errorf("writing accounts: %w", err)
	}
	return nil
}
