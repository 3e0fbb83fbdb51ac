// Package importlog keeps the CSV audit trail of import runs.
package importlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one row in the import log.
type Entry struct {
	Timestamp  time.Time
	RunID      uuid.UUID
	File       string
	Format     string
	Mode       string
	Accounts   []string
	Added      int
	Updated    int
	Errors     int
	CommitHash string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,run_id,file,format,mode,accounts,added,updated,errors,commit_hash"

const (
	numFields     = 10
	logDir        = "logs"
	logFile       = "logs/import-log.csv"
	colTimestamp  = 0
	colRunID      = 1
	colFile       = 2
	colFormat     = 3
	colMode       = 4
	colAccounts   = 5
	colAdded      = 6
	colUpdated    = 7
	colErrors     = 8
	colCommitHash = 9
)

// accountSep joins account names in one cell.
const accountSep = "|"

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colRunID] = e.RunID.String()
	row[colFile] = e.File
	row[colFormat] = e.Format
	row[colMode] = e.Mode
	row[colAccounts] = strings.Join(e.Accounts, accountSep)
	row[colAdded] = strconv.Itoa(e.Added)
	row[colUpdated] = strconv.Itoa(e.Updated)
	row[colErrors] = strconv.Itoa(e.Errors)
	row[colCommitHash] = e.CommitHash
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	runID, err := uuid.Parse(record[colRunID])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing run id %q: %w", record[colRunID], err)
	}

	counts := make([]int, 3)
	for i, col := range []int{colAdded, colUpdated, colErrors} {
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[col], err)
		}
		counts[i] = n
	}

	var accounts []string
	if record[colAccounts] != "" {
		accounts = strings.Split(record[colAccounts], accountSep)
	}

	return Entry{
		Timestamp:  ts,
		RunID:      runID,
		File:       record[colFile],
		Format:     record[colFormat],
		Mode:       record[colMode],
		Accounts:   accounts,
		Added:      counts[0],
		Updated:    counts[1],
		Errors:     counts[2],
		CommitHash: record[colCommitHash],
	}, nil
}

// Append writes entries to <repoRoot>/logs/import-log.csv, creating the file and header if needed.
func Append(repoRoot string, entries []Entry) error {
	dir := filepath.Join(repoRoot, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(repoRoot, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <repoRoot>/logs/import-log.csv.
// Returns an empty slice if the file does not exist.
func Read(repoRoot string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(repoRoot, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
