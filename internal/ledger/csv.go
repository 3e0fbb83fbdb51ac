package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/model"
)

// Header is the CSV header for postings.csv.
const Header = "posting_id,date,account_id,amount,payee,imported_payee,notes,category_id,external_id,cleared,tombstone,transfer_id"

const (
	numFields     = 12
	colID         = 0
	colDate       = 1
	colAcctID     = 2
	colAmount     = 3
	colPayee      = 4
	colImported   = 5
	colNotes      = 6
	colCategory   = 7
	colExternalID = 8
	colCleared    = 9
	colTombstone  = 10
	colTransfer   = 11
)

// ReadPostings reads all postings from a postings.csv reader.
func ReadPostings(r io.Reader) ([]model.Posting, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading postings CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row.
	var postings []model.Posting
	for i, rec := range records[1:] {
		p, err := UnmarshalPosting(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		postings = append(postings, p)
	}
	return postings, nil
}

// WritePostings writes postings to a postings.csv writer (including header).
func WritePostings(w io.Writer, postings []model.Posting) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, p := range postings {
		if err := cw.Write(MarshalPosting(p)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendPostings appends postings to an existing postings.csv writer (no header).
func AppendPostings(w io.Writer, postings []model.Posting) error {
	cw := csv.NewWriter(w)

	for i, p := range postings {
		if err := cw.Write(MarshalPosting(p)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalPosting converts a Posting to a CSV row.
func MarshalPosting(p model.Posting) []string {
	row := make([]string, numFields)
	row[colID] = p.ID
	row[colDate] = p.Date.Format(model.DateFormat)
	row[colAcctID] = strconv.Itoa(p.AccountID)
	row[colAmount] = amount.Format(p.Amount)
	row[colPayee] = p.Payee
	row[colImported] = p.ImportedPayee
	row[colNotes] = p.Notes
	row[colCategory] = p.CategoryID
	row[colExternalID] = p.ExternalID
	row[colCleared] = flag(p.Cleared)
	row[colTombstone] = flag(p.Tombstone)
	row[colTransfer] = p.TransferID
	return row
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// UnmarshalPosting converts a CSV row to a Posting.
func UnmarshalPosting(record []string) (model.Posting, error) {
	if len(record) != numFields {
		return model.Posting{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	date, err := time.Parse(model.DateFormat, record[colDate])
	if err != nil {
		return model.Posting{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}

	accountID, err := strconv.Atoi(record[colAcctID])
	if err != nil {
		return model.Posting{}, fmt.Errorf("parsing account_id %q: %w", record[colAcctID], err)
	}

	amt, ok := amount.ParseExact(record[colAmount])
	if !ok {
		return model.Posting{}, fmt.Errorf("parsing amount %q", record[colAmount])
	}

	return model.Posting{
		ID:            record[colID],
		Date:          date,
		AccountID:     accountID,
		Amount:        amt,
		Payee:         record[colPayee],
		ImportedPayee: record[colImported],
		Notes:         record[colNotes],
		CategoryID:    record[colCategory],
		ExternalID:    record[colExternalID],
		Cleared:       record[colCleared] != "",
		Tombstone:     record[colTombstone] != "",
		TransferID:    record[colTransfer],
	}, nil
}
