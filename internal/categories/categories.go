// Package categories holds the category chart postings are tagged with.
package categories

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Category is one budget category inside a group.
type Category struct {
	ID    string
	Group string
	Name  string
}

// Qualified returns the "Group:Category" form used by payee mappings.
func (c Category) Qualified() string {
	return c.Group + ":" + c.Name
}

var header = []string{"category_id", "group", "name"}

const numFields = 3

// Service resolves categories by id and by group/name.
type Service struct {
	cats []Category
	byID map[string]Category
}

// NewService creates a Service from a slice of categories.
func NewService(cats []Category) *Service {
	byID := make(map[string]Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	return &Service{cats: cats, byID: byID}
}

// All returns all categories.
func (s *Service) All() []Category {
	return s.cats
}

// Get returns a category by id.
func (s *Service) Get(id string) (Category, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Resolve returns the id of the category named name inside group.
// Names are compared case-insensitively.
func (s *Service) Resolve(group, name string) (string, bool) {
	group, name = strings.TrimSpace(group), strings.TrimSpace(name)
	if group == "" || name == "" {
		return "", false
	}
	for _, c := range s.cats {
		if strings.EqualFold(c.Group, group) && strings.EqualFold(c.Name, name) {
			return c.ID, true
		}
	}
	return "", false
}

// ResolveQualified resolves a "Group:Category" string.
func (s *Service) ResolveQualified(qualified string) (string, bool) {
	group, name, ok := strings.Cut(qualified, ":")
	if !ok {
		return "", false
	}
	return s.Resolve(group, name)
}

func path(repoRoot string) string {
	return filepath.Join(repoRoot, "accounts", "categories.csv")
}

// Load reads accounts/categories.csv. A missing file yields an empty Service.
func Load(repoRoot string) (*Service, error) {
	f, err := os.Open(path(repoRoot))
	if errors.Is(err, fs.ErrNotExist) {
		return NewService(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening categories: %w", err)
	}
	defer f.Close()

	cats, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	return NewService(cats), nil
}

// Save writes the chart to accounts/categories.csv.
func (s *Service) Save(repoRoot string) error {
	if err := os.MkdirAll(filepath.Join(repoRoot, "accounts"), 0o755); err != nil {
		return fmt.Errorf("creating accounts dir: %w", err)
	}
	f, err := os.Create(path(repoRoot))
	if err != nil {
		return fmt.Errorf("creating categories file: %w", err)
	}
	defer f.Close()

	if err := Write(f, s.cats); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}
	return nil
}

// Read parses a categories CSV.
func Read(r io.Reader) ([]Category, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading categories CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	cats := make([]Category, 0, len(records)-1)
	for i, rec := range records[1:] {
		if rec[0] == "" {
			return nil, fmt.Errorf("row %d: empty category_id", i+2)
		}
		cats = append(cats, Category{ID: rec[0], Group: rec[1], Name: rec[2]})
	}
	return cats, nil
}

// Write renders a categories CSV including the header.
func Write(w io.Writer, cats []Category) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, c := range cats {
		if err := cw.Write([]string{c.ID, c.Group, c.Name}); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DefaultChart returns the category chart a fresh data directory starts with.
func DefaultChart() []Category {
	return []Category{
		{ID: "1010", Group: "Income", Name: "Salary"},
		{ID: "1020", Group: "Income", Name: "Other Income"},
		{ID: "2010", Group: "Food", Name: "Groceries"},
		{ID: "2020", Group: "Food", Name: "Restaurants"},
		{ID: "3010", Group: "Housing", Name: "Rent"},
		{ID: "3020", Group: "Housing", Name: "Utilities"},
		{ID: "4010", Group: "Transport", Name: "Public Transport"},
		{ID: "4020", Group: "Transport", Name: "Fuel"},
		{ID: "5010", Group: "Shopping", Name: "General"},
		{ID: "9010", Group: "Other", Name: "Fees"},
		{ID: "9020", Group: "Other", Name: "Corrections"},
	}
}
