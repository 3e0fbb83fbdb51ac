package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/importer"
)

// parseFlags binds importer.Options to command flags.
type parseFlags struct {
	delimiter     string
	noHeader      bool
	skipStart     int
	skipEnd       int
	payeeFromMemo bool
	noNotes       bool
	swissFormat   string
	dateFormat    string
	columns       importer.ColumnMapping
}

func (f *parseFlags) register(cmd *cobra.Command) {
	def := importer.DefaultOptions()
	fs := cmd.Flags()
	fs.StringVar(&f.delimiter, "delimiter", "", "field delimiter for delimited text (default: sniffed)")
	fs.BoolVar(&f.noHeader, "no-header", false, "delimited text has no header row")
	fs.IntVar(&f.skipStart, "skip-start", 0, "lines to skip at the start of delimited text")
	fs.IntVar(&f.skipEnd, "skip-end", 0, "lines to skip at the end of delimited text")
	fs.BoolVar(&f.payeeFromMemo, "payee-from-memo", false, "use the notes when the payee is empty")
	fs.BoolVar(&f.noNotes, "no-notes", false, "do not import notes")
	fs.StringVar(&f.swissFormat, "swiss-format", def.SwissBankFormat, `Swiss bank dialect: "auto", "A", "B" or "" for generic CSV`)
	fs.StringVar(&f.dateFormat, "date-format", "", "Go date layout for delimited text")
	fs.StringVar(&f.columns.Date, "col-date", def.Columns.Date, "date column")
	fs.StringVar(&f.columns.Payee, "col-payee", def.Columns.Payee, "payee column")
	fs.StringVar(&f.columns.Notes, "col-notes", def.Columns.Notes, "notes column")
	fs.StringVar(&f.columns.Amount, "col-amount", def.Columns.Amount, "amount column")
	fs.StringVar(&f.columns.Inflow, "col-inflow", "", "inflow column, used with --col-outflow instead of --col-amount")
	fs.StringVar(&f.columns.Outflow, "col-outflow", "", "outflow column")
}

func (f *parseFlags) options() importer.Options {
	opts := importer.DefaultOptions()
	opts.Delimiter = f.delimiter
	opts.HasHeaderRow = !f.noHeader
	opts.SkipStartLines = f.skipStart
	opts.SkipEndLines = f.skipEnd
	opts.FallbackMissingPayeeToMemo = f.payeeFromMemo
	opts.ImportNotes = !f.noNotes
	opts.SwissBankFormat = f.swissFormat
	opts.DateFormat = f.dateFormat
	opts.Columns = f.columns
	if f.columns.Inflow != "" || f.columns.Outflow != "" {
		opts.Columns.Amount = ""
	}
	return opts
}
