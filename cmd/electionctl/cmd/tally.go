package cmd

import (
	"github.com/spf13/cobra"
)

var flagFinal bool

func init() {
	tallyCmd := &cobra.Command{
		Use:   "tally <election-id>",
		Short: "Print the current results of an election",
		Long:  "Print the current results of an election. With --final the tally of an ended election is stored as its final snapshot first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Database.Close()

			if flagFinal {
				if _, err := rt.Module.Results.FinalizeResults(c.Context(), args[0]); err != nil {
					return err
				}
			}
			results, err := rt.Module.Handler.ResultsHandler(c.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(c.OutOrStdout(), results)
		},
	}
	tallyCmd.Flags().BoolVar(&flagFinal, "final", false, "store the final snapshot of an ended election")
	rootCmd.AddCommand(tallyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "rebuild-counts <election-id>",
		Short: "Recompute candidate vote counters from the ballot ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Database.Close()

			resp, err := rt.Module.Handler.RebuildVoteCountsHandler(c.Context(), ctlActorID, args[0])
			if err != nil {
				return err
			}
			return printResult(c.OutOrStdout(), resp)
		},
	})
}
