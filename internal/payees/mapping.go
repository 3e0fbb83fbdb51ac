package payees

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Entry maps one payee to a "Group:Category" name.
type Entry struct {
	Payee    string
	Category string
}

// Mapping is the ordered payee document. Document order is the fuzzy
// matcher's tie-break order.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// NewMapping builds a mapping from entries; later duplicates replace earlier ones in place.
func NewMapping(entries ...Entry) *Mapping {
	m := &Mapping{index: make(map[string]int)}
	for _, e := range entries {
		m.Set(e.Payee, e.Category)
	}
	return m
}

// Entries returns a copy in document order.
func (m *Mapping) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Len returns the number of entries.
func (m *Mapping) Len() int { return len(m.entries) }

// Get returns the category for an exact payee key.
func (m *Mapping) Get(payee string) (string, bool) {
	i, ok := m.index[payee]
	if !ok {
		return "", false
	}
	return m.entries[i].Category, true
}

// Set adds or replaces an entry. Replacing keeps the entry's position.
func (m *Mapping) Set(payee, category string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[payee]; ok {
		m.entries[i].Category = category
		return
	}
	m.index[payee] = len(m.entries)
	m.entries = append(m.entries, Entry{Payee: payee, Category: category})
}

// UnmarshalYAML reads a YAML mapping, keeping key order.
func (m *Mapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: payee mappings must be a mapping", node.Line)
	}
	*m = Mapping{index: make(map[string]int)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: payee mapping entries must be scalars", k.Line)
		}
		m.Set(k.Value, v.Value)
	}
	return nil
}

// MarshalYAML writes the entries as one ordered mapping.
func (m *Mapping) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m.entries {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Payee},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Category},
		)
	}
	return node, nil
}

// Load reads the mapping document. A missing file is an empty mapping.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMapping(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading payee mappings: %w", err)
	}

	m := NewMapping()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing payee mappings: %w", err)
	}
	return m, nil
}

// Save writes the mapping document, creating parent directories.
func Save(path string, m *Mapping) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating mappings dir: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling payee mappings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing payee mappings: %w", err)
	}
	return nil
}
