package queries

import (
	"context"
	"strings"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/domain/services"
	"guildhall/contexts/governance/election-service/ports"
)

// ElectionView is an election with its positions and every registered
// candidate, for organizers.
type ElectionView struct {
	Election   entities.Election
	Positions  []entities.Position
	Candidates []entities.Candidate
}

type ElectionQueries struct {
	Elections ports.ElectionRepository
	Ledger    ports.BallotLedger
}

func (q ElectionQueries) GetElection(ctx context.Context, electionID string) (ElectionView, error) {
	election, err := q.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return ElectionView{}, err
	}
	positions, err := q.Elections.ListPositions(ctx, election.ElectionID)
	if err != nil {
		return ElectionView{}, err
	}
	candidates, err := q.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return ElectionView{}, err
	}
	return ElectionView{
		Election:   election,
		Positions:  services.OrderPositions(election, positions),
		Candidates: candidates,
	}, nil
}

func (q ElectionQueries) ListElections(ctx context.Context, status string) ([]entities.Election, error) {
	filter := entities.ElectionStatus(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return nil, domainerrors.ErrInvalidInput
	}
	return q.Elections.ListElections(ctx, filter)
}

// BallotForm returns the contested positions and approved candidates a voter
// chooses from.
func (q ElectionQueries) BallotForm(ctx context.Context, electionID string) (entities.BallotForm, error) {
	election, err := q.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return entities.BallotForm{}, err
	}
	if election.Status == entities.ElectionStatusCancelled {
		return entities.BallotForm{}, domainerrors.ErrElectionCancelled
	}
	positions, err := q.Elections.ListPositions(ctx, election.ElectionID)
	if err != nil {
		return entities.BallotForm{}, err
	}
	candidates, err := q.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return entities.BallotForm{}, err
	}
	return entities.BallotForm{
		ElectionID: election.ElectionID,
		Title:      election.Title,
		Rules:      election.Rules,
		EndsAt:     election.EndsAt,
		Positions:  services.ContestedPositions(election, positions, candidates),
	}, nil
}

func (q ElectionQueries) VoterStatus(ctx context.Context, electionID string, voterID string) (entities.VoterStatus, error) {
	electionID = strings.TrimSpace(electionID)
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return entities.VoterStatus{}, domainerrors.ErrInvalidInput
	}
	if _, err := q.Elections.GetElection(ctx, electionID); err != nil {
		return entities.VoterStatus{}, err
	}
	ballot, found, err := q.Ledger.GetBallotByVoter(ctx, electionID, voterID)
	if err != nil {
		return entities.VoterStatus{}, err
	}
	status := entities.VoterStatus{ElectionID: electionID, HasVoted: found}
	if found {
		status.BallotID = ballot.BallotID
		status.SubmittedAt = ballot.SubmittedAt
	}
	return status, nil
}
