package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/ledger"
	"github.com/cleared-dev/reconcile/internal/logger"
	"github.com/cleared-dev/reconcile/internal/pipeline"
)

func newCheckCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate posting IDs, account references and transfer links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := absDir(*dataDir)
			if err != nil {
				return err
			}
			ic, err := pipeline.Open(root)
			if err != nil {
				return err
			}
			if err := checkLedger(cmd.Context(), cmd.OutOrStdout(), ic.Ledger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ledger OK")
			return nil
		},
	}
}

// checkLedger prints every invariant violation and fails when there is one.
func checkLedger(ctx context.Context, out io.Writer, store *ledger.Store) error {
	violations := store.Validate()
	if len(violations) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	for _, v := range violations {
		fmt.Fprintf(out, "invalid: %s\n", v.Error())
		log.Warn().Int("rule", v.Rule).Str("posting_id", v.PostingID).Msg(v.Description)
	}
	return fmt.Errorf("ledger has %d invariant violation(s)", len(violations))
}
