package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snapp-incubator/conformer/internal/catalog"
)

func newEndpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoint catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range catalog.Names() {
				e, _ := catalog.Lookup(name)
				fmt.Fprintf(w, "%s\t%s\t%d\n", name, e, e.Placeholders())
			}
			return w.Flush()
		},
	}
}
