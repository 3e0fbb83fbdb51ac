package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/reconcile/internal/pipeline"
)

func newMappingsCommand(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "List the learned payee to category mappings",
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

			out := cmd.OutOrStdout()
			if ic.Mapping.Len() == 0 {
				fmt.Fprintln(out, "No payee mappings")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PAYEE\tCATEGORY")
			for _, e := range ic.Mapping.Entries() {
				fmt.Fprintf(tw, "%s\t%s\n", e.Payee, e.Category)
			}
			return tw.Flush()
		},
	}
}
