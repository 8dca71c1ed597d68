package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bizmarket/marketplace/internal/config"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List guarded route prefixes and their policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			table, err := cfg.LoadGuardTable()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tPOLICY\tFALLBACK\tFORBIDDEN")
			for _, r := range table.Routes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Prefix, r.Policy, r.Fallback, r.ForbiddenFallback)
			}
			return w.Flush()
		},
	}
}
