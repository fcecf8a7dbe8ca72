package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List or validate the scenario catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := loadCatalog()
		if err != nil {
			return fmt.Errorf("invalid scenario catalog: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tID\tNAME\tPOV\tTURNS")
		for i, sc := range catalog.All() {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\n", i, sc.ID, sc.Name, sc.PointOfView, len(sc.Turns))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
}
