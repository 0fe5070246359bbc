package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/geo"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the regions and sub-regions available for discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range geo.Regions() {
			subs, err := geo.SubRegions(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, strings.Join(subs, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
