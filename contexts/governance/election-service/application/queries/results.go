package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "guildhall/contexts/governance/election-service/application"
	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/domain/services"
	"guildhall/contexts/governance/election-service/ports"
)

// ResultsQueries computes tallies from the ballot ledger. Reads take no lock:
// each call works from the ledger state current at read time, and the cache
// is keyed by that state so a new ballot always produces a fresh tally.
type ResultsQueries struct {
	Elections ports.ElectionRepository
	Ledger    ports.BallotLedger
	Snapshots ports.ResultSnapshotStore
	Cache     ports.ResultsCache
	Clock     ports.Clock
	Metrics   ports.Metrics
	Logger    *slog.Logger
}

func (q ResultsQueries) ComputeResults(ctx context.Context, electionID string) (entities.ElectionResults, error) {
	election, err := q.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return entities.ElectionResults{}, err
	}
	if election.Status == entities.ElectionStatusCancelled {
		return entities.ElectionResults{}, domainerrors.ErrElectionCancelled
	}

	version := services.ResultsVersion(election)
	if election.Status == entities.ElectionStatusEnded && q.Snapshots != nil {
		snapshot, found, err := q.Snapshots.GetResultSnapshot(ctx, election.ElectionID)
		if err != nil {
			return entities.ElectionResults{}, err
		}
		if found && snapshot.Version == version {
			return snapshot.Results, nil
		}
	}

	compute := func(ctx context.Context) (entities.ElectionResults, error) {
		return q.tally(ctx, election)
	}
	if q.Cache == nil {
		return compute(ctx)
	}
	return q.Cache.Load(ctx, version, compute)
}

// FinalizeResults stores the final tally of an ended election. Calling it
// again for the same ledger state rewrites an identical snapshot.
func (q ResultsQueries) FinalizeResults(ctx context.Context, electionID string) (entities.ElectionResults, error) {
	election, err := q.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return entities.ElectionResults{}, err
	}
	if election.Status != entities.ElectionStatusEnded {
		return entities.ElectionResults{}, &domainerrors.InvalidTransitionError{
			From:   string(election.Status),
			To:     string(entities.ElectionStatusEnded),
			Reason: "final results need an ended election",
		}
	}
	results, err := q.tally(ctx, election)
	if err != nil {
		return entities.ElectionResults{}, err
	}
	if q.Snapshots != nil {
		if err := q.Snapshots.SaveResultSnapshot(ctx, ports.ResultSnapshot{
			ElectionID: election.ElectionID,
			Version:    services.ResultsVersion(election),
			Results:    results,
			CreatedAt:  q.now(),
		}); err != nil {
			return entities.ElectionResults{}, err
		}
	}
	application.ResolveLogger(q.Logger).Info("final election results stored",
		"event", "election_results_finalized",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", election.ElectionID,
		"ballots_counted", results.BallotsCounted,
	)
	return results, nil
}

func (q ResultsQueries) tally(ctx context.Context, election entities.Election) (entities.ElectionResults, error) {
	started := time.Now()
	positions, err := q.Elections.ListPositions(ctx, election.ElectionID)
	if err != nil {
		return entities.ElectionResults{}, err
	}
	candidates, err := q.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return entities.ElectionResults{}, err
	}
	ballots, err := q.Ledger.ListBallots(ctx, election.ElectionID)
	if err != nil {
		return entities.ElectionResults{}, err
	}
	results := services.Tally(election, positions, candidates, ballots)
	if q.Metrics != nil {
		q.Metrics.ObserveTally(time.Since(started), results.Provisional)
	}
	return results, nil
}

func (q ResultsQueries) now() time.Time {
	if q.Clock != nil {
		return q.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
