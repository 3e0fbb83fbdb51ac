package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/importer"
	"github.com/cleared-dev/reconcile/internal/model"
)

func newParseCommand() *cobra.Command {
	var flags parseFlags

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse an export file and print the normalized records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := importer.ParseFile(args[0], flags.options())
			out := cmd.OutOrStdout()
			printMetadata(out, res.Metadata)
			printTransactions(out, res.Transactions)
			printParseErrors(out, res.Errors)
			if len(res.Transactions) == 0 && len(res.Errors) > 0 {
				return errors.New(res.Errors[0].Message)
			}
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func printMetadata(out io.Writer, md *importer.Metadata) {
	if md == nil {
		return
	}
	if md.BankFormat != "" {
		fmt.Fprintf(out, "Format:     %s\n", md.BankFormat)
	}
	if md.BankSaldo != nil {
		fmt.Fprintf(out, "Balance:    %s\n", amount.Format(*md.BankSaldo))
	}
	if len(md.Currencies) > 0 {
		fmt.Fprintf(out, "Currencies: %s\n", strings.Join(md.Currencies, ", "))
	}
}

func printTransactions(out io.Writer, txns []model.Transaction) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tCCY\tPAYEE\tNOTES\tKIND")
	for _, t := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Date.Format(model.DateFormat),
			amount.Format(t.Amount),
			t.Currency,
			t.Payee,
			t.Notes,
			t.Kind(),
		)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d transactions\n", len(txns))
}

func printParseErrors(out io.Writer, errs []importer.ParseError) {
	for _, e := range errs {
		fmt.Fprintf(out, "error: %s\n", e.Error())
	}
}
