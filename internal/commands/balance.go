package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/amount"
	"github.com/cleared-dev/reconcile/internal/pipeline"
)

func newBalanceCommand(dataDir *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "balance <account> <bank-balance>",
		Short: "Compare an account with the bank's balance and book a correction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := absDir(*dataDir)
			if err != nil {
				return err
			}
			expected, ok := amount.Parse(args[1])
			if !ok {
				return fmt.Errorf("invalid balance %q", args[1])
			}

			ic, err := pipeline.Open(root)
			if err != nil {
				return err
			}
			acct, ok := ic.Ledger.AccountByName(args[0])
			if !ok {
				return fmt.Errorf("unknown account %q", args[0])
			}

			res := pipeline.CheckBalance(cmd.Context(), ic, acct.ID, expected, dryRun)
			if !res.Success {
				return errors.New(res.Error)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ledger balance: %s\n", amount.Format(res.AccountBalance))
			fmt.Fprintf(out, "Bank balance:   %s\n", amount.Format(expected))
			switch {
			case res.Difference == 0:
				fmt.Fprintln(out, "Balanced")
			case res.CorrectionBooked:
				fmt.Fprintf(out, "Correction of %s booked (%s)\n", amount.Format(res.Difference), res.CorrectionID)
			default:
				fmt.Fprintf(out, "Difference:     %s\n", amount.Format(res.Difference))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the difference without booking a correction")

	return cmd
}
