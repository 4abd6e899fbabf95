package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

func newCatalogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "catalogs",
		Short:       "Prints the complement and voucher state keys accepted by --complement and --state",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VOUCHER STATE\tCODE\tDESCRIPTION")
			for _, entry := range query.VoucherStates() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Key, entry.Code, entry.Description)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "COMPLEMENT\tCODE\tDESCRIPTION")
			for _, entry := range query.Complements() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Key, entry.Code, entry.Description)
			}
			return w.Flush()
		},
	}
}
