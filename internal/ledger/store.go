// Package ledger is the CSV-backed posting store the import pipeline writes to.
//
// Postings live in <repoRoot>/ledger/postings.csv, payees in
// <repoRoot>/ledger/payees.csv and accounts in <repoRoot>/accounts/accounts.csv.
// The store serializes its own writes, but it does not re-validate a caller's
// matching decisions: two concurrent commits against one account can both
// insert the same record.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cleared-dev/reconcile/internal/accounts"
	"github.com/cleared-dev/reconcile/internal/id"
	"github.com/cleared-dev/reconcile/internal/model"
)

// ErrNotFound is returned for unknown posting IDs.
var ErrNotFound = errors.New("posting not found")

const (
	ledgerDir    = "ledger"
	postingsFile = "postings.csv"
	payeesFile   = "payees.csv"
)

// Store holds all postings in memory and persists every mutation.
type Store struct {
	mu       sync.Mutex
	repoRoot string
	accounts *accounts.Service
	postings []model.Posting
	byID     map[string]int
	payees   map[string]bool
	seq      *id.Sequencer
}

// Open loads the ledger under repoRoot. Missing files start empty.
func Open(repoRoot string) (*Store, error) {
	accts, err := accounts.Load(repoRoot)
	if err != nil {
		return nil, err
	}

	postings, err := readPostingsFile(filepath.Join(repoRoot, ledgerDir, postingsFile))
	if err != nil {
		return nil, err
	}

	payees, err := readPayeesFile(filepath.Join(repoRoot, ledgerDir, payeesFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		repoRoot: repoRoot,
		accounts: accts,
		postings: postings,
		byID:     make(map[string]int, len(postings)),
		payees:   make(map[string]bool, len(payees)),
	}
	ids := make([]string, len(postings))
	for i, p := range postings {
		s.byID[p.ID] = i
		ids[i] = p.ID
	}
	for _, name := range payees {
		s.payees[name] = true
	}
	s.seq = id.NewSequencer(ids)
	return s, nil
}

func readPostingsFile(path string) ([]model.Posting, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening postings %s: %w", path, err)
	}
	defer f.Close()

	postings, err := ReadPostings(f)
	if err != nil {
		return nil, fmt.Errorf("reading postings %s: %w", path, err)
	}
	return postings, nil
}

func readPayeesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening payees %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading payees %s: %w", path, err)
	}
	var names []string
	for i, rec := range records {
		if i == 0 || len(rec) == 0 {
			continue
		}
		names = append(names, rec[0])
	}
	return names, nil
}

// Accounts exposes the account chart backing this store.
func (s *Store) Accounts() *accounts.Service {
	return s.accounts
}

// Account returns an account by ID.
func (s *Store) Account(accountID int) (model.Account, bool) {
	return s.accounts.Get(accountID)
}

// AccountByName returns the account with exactly this name.
func (s *Store) AccountByName(name string) (model.Account, bool) {
	return s.accounts.ByName(name)
}

// FindOrCreateAccount returns the named account, creating and persisting it when absent.
func (s *Store) FindOrCreateAccount(name, currency string) (model.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, created, err := s.accounts.FindOrCreate(name, currency)
	if err != nil {
		return model.Account{}, false, err
	}
	if created {
		if err := s.accounts.Save(s.repoRoot); err != nil {
			return model.Account{}, false, err
		}
	}
	return acct, created, nil
}

// Postings returns a copy of all postings in an account, tombstoned ones included.
func (s *Store) Postings(accountID int) []model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Posting
	for _, p := range s.postings {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out
}

// Posting returns a posting by ID.
func (s *Store) Posting(postingID string) (model.Posting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[postingID]
	if !ok {
		return model.Posting{}, false
	}
	return s.postings[i], true
}

// Insert assigns an ID to p, appends it to postings.csv and returns the stored posting.
func (s *Store) Insert(p model.Posting) (model.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accounts.Exists(p.AccountID) {
		return model.Posting{}, fmt.Errorf("inserting posting: unknown account %d", p.AccountID)
	}
	if p.Date.IsZero() {
		return model.Posting{}, errors.New("inserting posting: missing date")
	}

	p.ID = s.seq.Next(p.Date)
	if err := s.appendFile(p); err != nil {
		return model.Posting{}, err
	}
	s.postings = append(s.postings, p)
	s.byID[p.ID] = len(s.postings) - 1
	return p, nil
}

// Update replaces a stored posting (matched by ID) and rewrites postings.csv.
func (s *Store) Update(p model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[p.ID]
	if !ok {
		return fmt.Errorf("updating %s: %w", p.ID, ErrNotFound)
	}
	if p.AccountID != s.postings[i].AccountID {
		return fmt.Errorf("updating %s: account cannot change", p.ID)
	}

	prev := s.postings[i]
	s.postings[i] = p
	if err := s.rewriteFile(); err != nil {
		s.postings[i] = prev
		return err
	}
	return nil
}

// Delete tombstones a posting. Tombstoned postings stay in the file and
// keep blocking re-imports of the same record.
func (s *Store) Delete(postingID string) error {
	p, ok := s.Posting(postingID)
	if !ok {
		return fmt.Errorf("deleting %s: %w", postingID, ErrNotFound)
	}
	p.Tombstone = true
	return s.Update(p)
}

// FindOrCreatePayee registers a payee name. It reports whether the name was new.
func (s *Store) FindOrCreatePayee(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("payee name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payees[name] {
		return false, nil
	}
	s.payees[name] = true
	if err := s.writePayees(); err != nil {
		delete(s.payees, name)
		return false, err
	}
	return true, nil
}

// Payees returns the registered payee names, sorted.
func (s *Store) Payees() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.payees))
	for name := range s.payees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every posting in file order.
func (s *Store) All() []model.Posting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Posting(nil), s.postings...)
}

func (s *Store) appendFile(p model.Posting) error {
	dir := filepath.Join(s.repoRoot, ledgerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	path := filepath.Join(dir, postingsFile)
	isNew := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening postings: %w", err)
	}
	defer f.Close()

	if isNew {
		if _, err := fmt.Fprintln(f, Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := AppendPostings(f, []model.Posting{p}); err != nil {
		return fmt.Errorf("appending posting: %w", err)
	}
	return nil
}

func (s *Store) rewriteFile() error {
	return s.replaceFile(postingsFile, func(f *os.File) error {
		return WritePostings(f, s.postings)
	})
}

func (s *Store) writePayees() error {
	names := make([]string, 0, len(s.payees))
	for name := range s.payees {
		names = append(names, name)
	}
	sort.Strings(names)

	return s.replaceFile(payeesFile, func(f *os.File) error {
		cw := csv.NewWriter(f)
		if err := cw.Write([]string{"payee"}); err != nil {
			return err
		}
		for _, name := range names {
			if err := cw.Write([]string{name}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// replaceFile writes a ledger file through a temp file and renames it into place.
func (s *Store) replaceFile(name string, write func(*os.File) error) error {
	dir := filepath.Join(s.repoRoot, ledgerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
