package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the election tables",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			rt, err := openRuntime(true)
			if err != nil {
				return err
			}
			defer rt.Database.Close()

			fmt.Fprintf(c.OutOrStdout(), "election schema migrated (%s)\n", rt.Database.Driver)
			return nil
		},
	})
}
