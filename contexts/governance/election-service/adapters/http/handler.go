package httpadapter

import (
	"context"
	"log/slog"
	"strings"

	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/application/queries"
	"guildhall/contexts/governance/election-service/domain/entities"
	httptransport "guildhall/contexts/governance/election-service/transport/http"
)

type Handler struct {
	Registry  commands.RegistryUseCase
	Ballots   commands.BallotUseCase
	Elections queries.ElectionQueries
	Results   queries.ResultsQueries
	Logger    *slog.Logger
}

func (h Handler) CreateElectionHandler(
	ctx context.Context,
	actorID string,
	req httptransport.CreateElectionRequest,
) (httptransport.ElectionResponse, error) {
	election, err := h.Registry.CreateElection(ctx, commands.CreateElectionCommand{
		ActorID:             actorID,
		Title:               req.Title,
		Description:         req.Description,
		Rules:               req.Rules,
		StartsAt:            req.StartsAt,
		EndsAt:              req.EndsAt,
		TotalEligibleVoters: req.TotalEligibleVoters,
	})
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election), nil
}

func (h Handler) UpdateElectionHandler(
	ctx context.Context,
	actorID string,
	electionID string,
	req httptransport.UpdateElectionRequest,
) (httptransport.ElectionResponse, error) {
	election, err := h.Registry.UpdateElection(ctx, commands.UpdateElectionCommand{
		ElectionID:          electionID,
		ActorID:             actorID,
		Title:               req.Title,
		Description:         req.Description,
		Rules:               req.Rules,
		StartsAt:            req.StartsAt,
		EndsAt:              req.EndsAt,
		TotalEligibleVoters: req.TotalEligibleVoters,
	})
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election), nil
}

func (h Handler) GetElectionHandler(ctx context.Context, electionID string) (httptransport.ElectionDetailResponse, error) {
	view, err := h.Elections.GetElection(ctx, electionID)
	if err != nil {
		return httptransport.ElectionDetailResponse{}, err
	}
	byPosition := make(map[string][]httptransport.CandidateResponse, len(view.Positions))
	for _, candidate := range view.Candidates {
		byPosition[candidate.PositionID] = append(byPosition[candidate.PositionID], mapCandidate(candidate))
	}
	positions := make([]httptransport.PositionResponse, 0, len(view.Positions))
	for _, position := range view.Positions {
		item := mapPosition(position)
		item.Candidates = byPosition[position.PositionID]
		positions = append(positions, item)
	}
	return httptransport.ElectionDetailResponse{
		Election:  mapElection(view.Election),
		Positions: positions,
	}, nil
}

func (h Handler) ListElectionsHandler(ctx context.Context, status string) (httptransport.ListElectionsResponse, error) {
	elections, err := h.Elections.ListElections(ctx, status)
	if err != nil {
		return httptransport.ListElectionsResponse{}, err
	}
	items := make([]httptransport.ElectionResponse, 0, len(elections))
	for _, election := range elections {
		items = append(items, mapElection(election))
	}
	return httptransport.ListElectionsResponse{Items: items}, nil
}

func (h Handler) AddPositionHandler(
	ctx context.Context,
	actorID string,
	electionID string,
	req httptransport.AddPositionRequest,
) (httptransport.PositionResponse, error) {
	position, err := h.Registry.AddPosition(ctx, commands.AddPositionCommand{
		ElectionID:  electionID,
		ActorID:     actorID,
		Name:        req.Name,
		Description: req.Description,
		MaxWinners:  req.MaxWinners,
	})
	if err != nil {
		return httptransport.PositionResponse{}, err
	}
	return mapPosition(position), nil
}

func (h Handler) AddCandidateHandler(
	ctx context.Context,
	actorID string,
	electionID string,
	positionID string,
	req httptransport.AddCandidateRequest,
) (httptransport.CandidateResponse, error) {
	candidate, err := h.Registry.AddCandidate(ctx, commands.AddCandidateCommand{
		ElectionID:  electionID,
		PositionID:  positionID,
		ActorID:     actorID,
		DisplayName: req.DisplayName,
		Manifesto:   req.Manifesto,
		Status:      entities.CandidateStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		return httptransport.CandidateResponse{}, err
	}
	return mapCandidate(candidate), nil
}

func (h Handler) ChangeCandidateStatusHandler(
	ctx context.Context,
	actorID string,
	electionID string,
	candidateID string,
	req httptransport.ChangeCandidateStatusRequest,
) (httptransport.CandidateResponse, error) {
	status := entities.CandidateStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	candidate, err := h.Registry.ChangeCandidateStatus(ctx, commands.ChangeCandidateStatusCommand{
		ElectionID:  electionID,
		CandidateID: candidateID,
		ActorID:     actorID,
		Status:      status,
		Reason:      req.Reason,
	})
	if err != nil {
		return httptransport.CandidateResponse{}, err
	}
	return mapCandidate(candidate), nil
}

func (h Handler) TransitionElectionHandler(
	ctx context.Context,
	actorID string,
	electionID string,
	req httptransport.TransitionRequest,
) (httptransport.ElectionResponse, error) {
	election, err := h.Registry.TransitionElection(ctx, commands.TransitionElectionCommand{
		ElectionID: electionID,
		ToStatus:   entities.ElectionStatus(req.ToState),
		Manual:     req.Manual,
		ActorID:    actorID,
	})
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election), nil
}

func (h Handler) BallotFormHandler(ctx context.Context, electionID string) (httptransport.BallotFormResponse, error) {
	form, err := h.Elections.BallotForm(ctx, electionID)
	if err != nil {
		return httptransport.BallotFormResponse{}, err
	}
	positions := make([]httptransport.BallotFormPosition, 0, len(form.Positions))
	for _, item := range form.Positions {
		candidates := make([]httptransport.BallotFormCandidate, 0, len(item.Candidates))
		for _, candidate := range item.Candidates {
			candidates = append(candidates, httptransport.BallotFormCandidate{
				CandidateID: candidate.CandidateID,
				DisplayName: candidate.DisplayName,
				Manifesto:   candidate.Manifesto,
			})
		}
		positions = append(positions, httptransport.BallotFormPosition{
			PositionID:  item.Position.PositionID,
			Name:        item.Position.Name,
			Description: item.Position.Description,
			MaxWinners:  item.Position.MaxWinners,
			Candidates:  candidates,
		})
	}
	return httptransport.BallotFormResponse{
		ElectionID: form.ElectionID,
		Title:      form.Title,
		Rules:      form.Rules,
		EndsAt:     form.EndsAt,
		Positions:  positions,
	}, nil
}

func (h Handler) SubmitBallotHandler(
	ctx context.Context,
	voterID string,
	electionID string,
	req httptransport.SubmitBallotRequest,
) (httptransport.SubmitBallotResponse, error) {
	selections := make([]entities.Selection, 0, len(req.Selections))
	for _, item := range req.Selections {
		selections = append(selections, entities.Selection{
			PositionID:  item.PositionID,
			CandidateID: item.CandidateID,
		})
	}
	result, err := h.Ballots.SubmitBallot(ctx, commands.SubmitBallotCommand{
		ElectionID: electionID,
		VoterID:    voterID,
		Selections: selections,
	})
	if err != nil {
		return httptransport.SubmitBallotResponse{}, err
	}
	return httptransport.SubmitBallotResponse{
		BallotID:    result.BallotID,
		ElectionID:  result.ElectionID,
		SubmittedAt: result.SubmittedAt,
	}, nil
}

func (h Handler) VoterStatusHandler(ctx context.Context, voterID string, electionID string) (httptransport.VoterStatusResponse, error) {
	status, err := h.Elections.VoterStatus(ctx, electionID, voterID)
	if err != nil {
		return httptransport.VoterStatusResponse{}, err
	}
	resp := httptransport.VoterStatusResponse{
		ElectionID: status.ElectionID,
		HasVoted:   status.HasVoted,
		BallotID:   status.BallotID,
	}
	if status.HasVoted {
		submittedAt := status.SubmittedAt
		resp.SubmittedAt = &submittedAt
	}
	return resp, nil
}

func (h Handler) ResultsHandler(ctx context.Context, electionID string) (httptransport.ResultsResponse, error) {
	results, err := h.Results.ComputeResults(ctx, electionID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return mapResults(results), nil
}

func (h Handler) RebuildVoteCountsHandler(ctx context.Context, actorID string, electionID string) (httptransport.RebuildVoteCountsResponse, error) {
	result, err := h.Ballots.RebuildVoteCounts(ctx, commands.RebuildVoteCountsCommand{
		ElectionID: electionID,
		ActorID:    actorID,
	})
	if err != nil {
		return httptransport.RebuildVoteCountsResponse{}, err
	}
	return httptransport.RebuildVoteCountsResponse{
		ElectionID:     result.ElectionID,
		BallotsCounted: result.BallotsCounted,
		Counts:         result.Counts,
	}, nil
}

func mapElection(election entities.Election) httptransport.ElectionResponse {
	positionIDs := append([]string{}, election.PositionIDs...)
	return httptransport.ElectionResponse{
		ElectionID:          election.ElectionID,
		Title:               election.Title,
		Description:         election.Description,
		Rules:               election.Rules,
		StartsAt:            election.StartsAt,
		EndsAt:              election.EndsAt,
		Status:              string(election.Status),
		PositionIDs:         positionIDs,
		TotalEligibleVoters: election.TotalEligibleVoters,
		BallotsSubmitted:    election.BallotsSubmitted,
		CreatedBy:           election.CreatedBy,
		CreatedAt:           election.CreatedAt,
		UpdatedAt:           election.UpdatedAt,
	}
}

func mapPosition(position entities.Position) httptransport.PositionResponse {
	return httptransport.PositionResponse{
		PositionID:  position.PositionID,
		ElectionID:  position.ElectionID,
		Name:        position.Name,
		Description: position.Description,
		Ordering:    position.Ordering,
		MaxWinners:  position.MaxWinners,
	}
}

func mapCandidate(candidate entities.Candidate) httptransport.CandidateResponse {
	return httptransport.CandidateResponse{
		CandidateID: candidate.CandidateID,
		PositionID:  candidate.PositionID,
		ElectionID:  candidate.ElectionID,
		DisplayName: candidate.DisplayName,
		Manifesto:   candidate.Manifesto,
		Status:      string(candidate.Status),
		VoteCount:   candidate.VoteCount,
		Ordinal:     candidate.Ordinal,
	}
}

func mapResults(results entities.ElectionResults) httptransport.ResultsResponse {
	positions := make([]httptransport.PositionResultDTO, 0, len(results.Positions))
	for _, position := range results.Positions {
		candidates := make([]httptransport.CandidateResultDTO, 0, len(position.Candidates))
		for _, candidate := range position.Candidates {
			candidates = append(candidates, httptransport.CandidateResultDTO{
				CandidateID: candidate.CandidateID,
				DisplayName: candidate.DisplayName,
				Votes:       candidate.Votes,
				Percentage:  candidate.Percentage,
				Rank:        candidate.Rank,
				Tied:        candidate.Tied,
				Winner:      candidate.Winner,
			})
		}
		var voided []httptransport.VoidedResultDTO
		for _, item := range position.Voided {
			voided = append(voided, httptransport.VoidedResultDTO{
				CandidateID: item.CandidateID,
				DisplayName: item.DisplayName,
				Status:      string(item.Status),
				Votes:       item.Votes,
			})
		}
		positions = append(positions, httptransport.PositionResultDTO{
			PositionID:      position.PositionID,
			Name:            position.Name,
			MaxWinners:      position.MaxWinners,
			ValidVotes:      position.ValidVotes,
			VoidedVotes:     position.VoidedVotes,
			TotalSelections: position.TotalSelections,
			Candidates:      candidates,
			Voided:          voided,
		})
	}
	return httptransport.ResultsResponse{
		ElectionID:          results.ElectionID,
		Status:              string(results.Status),
		Provisional:         results.Provisional,
		BallotsCounted:      results.BallotsCounted,
		TotalEligibleVoters: results.TotalEligibleVoters,
		Turnout:             results.Turnout,
		Positions:           positions,
		ComputedAt:          results.ComputedAt,
	}
}
