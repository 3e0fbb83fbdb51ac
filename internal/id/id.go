package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatPostingID returns a posting ID like "2025-01-001".
func FormatPostingID(year, month, seq int) string {
	return fmt.Sprintf("%04d-%02d-%03d", year, month, seq)
}

// ParsePostingID parses "2025-01-001" into year, month, seq.
func ParsePostingID(id string) (year, month, seq int, err error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid posting ID format: %q", id)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid year in posting ID %q: %w", id, err)
	}

	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid month in posting ID %q: %w", id, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("month out of range in posting ID %q", id)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid sequence in posting ID %q: %w", id, err)
	}

	return year, month, seq, nil
}

// Sequencer hands out posting IDs, one sequence per calendar month.
type Sequencer struct {
	max map[string]int
}

// NewSequencer seeds a Sequencer from already-issued IDs. Unparseable IDs are ignored.
func NewSequencer(existing []string) *Sequencer {
	s := &Sequencer{max: make(map[string]int)}
	for _, id := range existing {
		year, month, seq, err := ParsePostingID(id)
		if err != nil {
			continue
		}
		key := monthKey(year, month)
		if seq > s.max[key] {
			s.max[key] = seq
		}
	}
	return s
}

// Next returns the next free posting ID for the month of date.
func (s *Sequencer) Next(date time.Time) string {
	year, month := date.Year(), int(date.Month())
	key := monthKey(year, month)
	s.max[key]++
	return FormatPostingID(year, month, s.max[key])
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
