package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	electionservice "guildhall/contexts/governance/election-service"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/domain/entities"
)

// SeedFile is the YAML layout accepted by `electionctl seed`.
type SeedFile struct {
	Elections []SeedElection `yaml:"elections"`
}

type SeedElection struct {
	Title               string         `yaml:"title"`
	Description         string         `yaml:"description"`
	Rules               string         `yaml:"rules"`
	StartsAt            string         `yaml:"starts_at"`
	EndsAt              string         `yaml:"ends_at"`
	TotalEligibleVoters int            `yaml:"total_eligible_voters"`
	Publish             bool           `yaml:"publish"`
	Positions           []SeedPosition `yaml:"positions"`
}

type SeedPosition struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	MaxWinners  int             `yaml:"max_winners"`
	Candidates  []SeedCandidate `yaml:"candidates"`
}

type SeedCandidate struct {
	DisplayName string `yaml:"display_name"`
	Manifesto   string `yaml:"manifesto"`
	Status      string `yaml:"status"`
}

type SeededElection struct {
	ElectionID string `json:"election_id" yaml:"election_id"`
	Title      string `json:"title" yaml:"title"`
	Status     string `json:"status" yaml:"status"`
	Positions  int    `json:"positions" yaml:"positions"`
	Candidates int    `json:"candidates" yaml:"candidates"`
}

var flagSeedFile string

func init() {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create draft elections, positions and candidates from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			raw, err := os.ReadFile(flagSeedFile)
			if err != nil {
				return err
			}
			file, err := ParseSeedFile(raw)
			if err != nil {
				return err
			}

			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Database.Close()

			seeded, err := ApplySeed(c.Context(), rt.Module, file)
			if err != nil {
				return err
			}
			return printResult(c.OutOrStdout(), seeded)
		},
	}
	seedCmd.Flags().StringVarP(&flagSeedFile, "file", "f", "elections.yaml", "seed file path")
	rootCmd.AddCommand(seedCmd)
}

func ParseSeedFile(raw []byte) (SeedFile, error) {
	var file SeedFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	if len(file.Elections) == 0 {
		return SeedFile{}, fmt.Errorf("seed file has no elections")
	}
	return file, nil
}

// ApplySeed creates every election in file through the registry. An election
// marked publish is moved to upcoming once its ballot shape is in place.
func ApplySeed(ctx context.Context, module electionservice.Module, file SeedFile) ([]SeededElection, error) {
	seeded := make([]SeededElection, 0, len(file.Elections))
	for i, item := range file.Elections {
		startsAt, err := parseSeedTime(item.StartsAt)
		if err != nil {
			return seeded, fmt.Errorf("elections[%d].starts_at: %w", i, err)
		}
		endsAt, err := parseSeedTime(item.EndsAt)
		if err != nil {
			return seeded, fmt.Errorf("elections[%d].ends_at: %w", i, err)
		}

		election, err := module.Registry.CreateElection(ctx, commands.CreateElectionCommand{
			ActorID:             ctlActorID,
			Title:               item.Title,
			Description:         item.Description,
			Rules:               item.Rules,
			StartsAt:            startsAt,
			EndsAt:              endsAt,
			TotalEligibleVoters: item.TotalEligibleVoters,
		})
		if err != nil {
			return seeded, fmt.Errorf("elections[%d]: %w", i, err)
		}

		summary := SeededElection{ElectionID: election.ElectionID, Title: election.Title}
		for j, pos := range item.Positions {
			position, err := module.Registry.AddPosition(ctx, commands.AddPositionCommand{
				ElectionID:  election.ElectionID,
				ActorID:     ctlActorID,
				Name:        pos.Name,
				Description: pos.Description,
				MaxWinners:  pos.MaxWinners,
			})
			if err != nil {
				return seeded, fmt.Errorf("elections[%d].positions[%d]: %w", i, j, err)
			}
			summary.Positions++

			for k, cand := range pos.Candidates {
				if _, err := module.Registry.AddCandidate(ctx, commands.AddCandidateCommand{
					ElectionID:  election.ElectionID,
					PositionID:  position.PositionID,
					ActorID:     ctlActorID,
					DisplayName: cand.DisplayName,
					Manifesto:   cand.Manifesto,
					Status:      entities.CandidateStatus(strings.ToLower(strings.TrimSpace(cand.Status))),
				}); err != nil {
					return seeded, fmt.Errorf("elections[%d].positions[%d].candidates[%d]: %w", i, j, k, err)
				}
				summary.Candidates++
			}
		}

		status := election.Status
		if item.Publish {
			published, err := module.Registry.TransitionElection(ctx, commands.TransitionElectionCommand{
				ElectionID: election.ElectionID,
				ToStatus:   entities.ElectionStatusUpcoming,
				ActorID:    ctlActorID,
			})
			if err != nil {
				return seeded, fmt.Errorf("elections[%d] publish: %w", i, err)
			}
			status = published.Status
		}
		summary.Status = string(status)
		seeded = append(seeded, summary)
	}
	return seeded, nil
}

func parseSeedTime(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
