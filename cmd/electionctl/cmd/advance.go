package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	postgresadapter "guildhall/contexts/governance/election-service/adapters/postgres"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/application/workers"
	"guildhall/contexts/governance/election-service/domain/entities"
)

var (
	flagElectionID string
	flagTo         string
)

func init() {
	advanceCmd := &cobra.Command{
		Use:   "advance",
		Short: "Open and close elections whose start or end time has passed",
		Long: "Run one scheduler pass over every due election. With --election and --to the " +
			"named election is moved manually, skipping the time guards.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if (flagElectionID == "") != (flagTo == "") {
				return fmt.Errorf("--election and --to must be given together")
			}

			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Database.Close()

			if flagElectionID != "" {
				election, err := rt.Module.Registry.TransitionElection(c.Context(), commands.TransitionElectionCommand{
					ElectionID: flagElectionID,
					ToStatus:   entities.ElectionStatus(flagTo),
					Manual:     true,
					ActorID:    ctlActorID,
				})
				if err != nil {
					return err
				}
				return printResult(c.OutOrStdout(), map[string]string{
					"election_id": election.ElectionID,
					"status":      string(election.Status),
				})
			}

			scheduler := workers.ElectionScheduler{
				Elections: rt.Repository,
				Registry:  rt.Module.Registry,
				Clock:     postgresadapter.SystemClock{},
				ActorID:   ctlActorID,
				Logger:    rt.Logger,
			}
			advanced, err := scheduler.RunOnce(c.Context())
			if err != nil {
				return err
			}
			return printResult(c.OutOrStdout(), map[string]int{"advanced": advanced})
		},
	}
	advanceCmd.Flags().StringVar(&flagElectionID, "election", "", "election id to move manually")
	advanceCmd.Flags().StringVar(&flagTo, "to", "", "target state {upcoming, ongoing, ended, cancelled}")
	rootCmd.AddCommand(advanceCmd)
}
