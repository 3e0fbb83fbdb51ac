package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cleared-dev/reconcile/internal/model"
)

// Header is the CSV header for accounts.csv.
var Header = []string{"account_id", "account_name", "off_budget", "currency", "closed"}

const (
	numFields    = 5
	colID        = 0
	colName      = 1
	colOffBudget = 2
	colCurrency  = 3
	colClosed    = 4
)

// ReadAccounts reads accounts.csv.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colID] = strconv.Itoa(acct.ID)
	row[colName] = acct.Name
	row[colOffBudget] = strconv.FormatBool(acct.OffBudget)
	row[colCurrency] = acct.Currency
	row[colClosed] = strconv.FormatBool(acct.Closed)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	id, err := strconv.Atoi(record[colID])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing account_id %q: %w", record[colID], err)
	}

	offBudget, err := parseBool(record[colOffBudget])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing off_budget %q: %w", record[colOffBudget], err)
	}

	closed, err := parseBool(record[colClosed])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing closed %q: %w", record[colClosed], err)
	}

	return model.Account{
		ID:        id,
		Name:      record[colName],
		OffBudget: offBudget,
		Currency:  record[colCurrency],
		Closed:    closed,
	}, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
