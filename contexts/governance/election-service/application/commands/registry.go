package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "guildhall/contexts/governance/election-service/application"
	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/domain/services"
	"guildhall/contexts/governance/election-service/ports"
)

type CreateElectionCommand struct {
	ActorID             string
	Title               string
	Description         string
	Rules               string
	StartsAt            time.Time
	EndsAt              time.Time
	TotalEligibleVoters int
}

// UpdateElectionCommand patches draft election details; nil fields are kept.
type UpdateElectionCommand struct {
	ElectionID          string
	ActorID             string
	Title               *string
	Description         *string
	Rules               *string
	StartsAt            *time.Time
	EndsAt              *time.Time
	TotalEligibleVoters *int
}

type AddPositionCommand struct {
	ElectionID  string
	ActorID     string
	Name        string
	Description string
	MaxWinners  int
}

type AddCandidateCommand struct {
	ElectionID  string
	PositionID  string
	ActorID     string
	DisplayName string
	Manifesto   string
	Status      entities.CandidateStatus
}

type ChangeCandidateStatusCommand struct {
	ElectionID  string
	CandidateID string
	ActorID     string
	Status      entities.CandidateStatus
	Reason      string
}

type TransitionElectionCommand struct {
	ElectionID string
	ToStatus   entities.ElectionStatus
	Manual     bool
	ActorID    string
}

// RegistryUseCase owns the election lifecycle: drafting the ballot shape and
// moving the election through draft -> upcoming -> ongoing -> ended, or to
// cancelled from any non-terminal state.
type RegistryUseCase struct {
	Elections ports.ElectionRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.Metrics
	Logger    *slog.Logger
}

func (uc RegistryUseCase) CreateElection(ctx context.Context, cmd CreateElectionCommand) (entities.Election, error) {
	logger := application.ResolveLogger(uc.Logger)
	title := strings.TrimSpace(cmd.Title)
	if title == "" ||
		strings.TrimSpace(cmd.ActorID) == "" ||
		cmd.StartsAt.IsZero() ||
		!cmd.EndsAt.After(cmd.StartsAt) ||
		cmd.TotalEligibleVoters < 0 {
		logger.Warn("election create validation failed",
			"event", "election_create_validation_failed",
			"module", "governance/election-service",
			"layer", "application",
			"actor_id", strings.TrimSpace(cmd.ActorID),
		)
		return entities.Election{}, domainerrors.ErrInvalidInput
	}

	electionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Election{}, err
	}
	now := uc.now()
	election := entities.Election{
		ElectionID:          electionID,
		Title:               title,
		Description:         strings.TrimSpace(cmd.Description),
		Rules:               strings.TrimSpace(cmd.Rules),
		StartsAt:            cmd.StartsAt.UTC(),
		EndsAt:              cmd.EndsAt.UTC(),
		Status:              entities.ElectionStatusDraft,
		PositionIDs:         []string{},
		TotalEligibleVoters: cmd.TotalEligibleVoters,
		CreatedBy:           strings.TrimSpace(cmd.ActorID),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := uc.Elections.CreateElection(ctx, election); err != nil {
		return entities.Election{}, err
	}
	logger.Info("election created",
		"event", "election_created",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", election.ElectionID,
		"actor_id", election.CreatedBy,
	)
	return election, nil
}

func (uc RegistryUseCase) UpdateElection(ctx context.Context, cmd UpdateElectionCommand) (entities.Election, error) {
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.Election{}, err
	}
	if election.Status != entities.ElectionStatusDraft {
		return entities.Election{}, domainerrors.ErrElectionLocked
	}

	if cmd.Title != nil {
		election.Title = strings.TrimSpace(*cmd.Title)
	}
	if cmd.Description != nil {
		election.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Rules != nil {
		election.Rules = strings.TrimSpace(*cmd.Rules)
	}
	if cmd.StartsAt != nil {
		election.StartsAt = cmd.StartsAt.UTC()
	}
	if cmd.EndsAt != nil {
		election.EndsAt = cmd.EndsAt.UTC()
	}
	if cmd.TotalEligibleVoters != nil {
		election.TotalEligibleVoters = *cmd.TotalEligibleVoters
	}
	if election.Title == "" || !election.EndsAt.After(election.StartsAt) || election.TotalEligibleVoters < 0 {
		return entities.Election{}, domainerrors.ErrInvalidInput
	}
	election.UpdatedAt = uc.now()

	if err := uc.Elections.UpdateElectionDetails(ctx, election); err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return entities.Election{}, domainerrors.ErrElectionLocked
		}
		return entities.Election{}, err
	}
	application.ResolveLogger(uc.Logger).Info("election details updated",
		"event", "election_updated",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", election.ElectionID,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return election, nil
}

func (uc RegistryUseCase) AddPosition(ctx context.Context, cmd AddPositionCommand) (entities.Position, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || cmd.MaxWinners < 0 {
		return entities.Position{}, domainerrors.ErrInvalidInput
	}
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.Position{}, err
	}
	if election.Status != entities.ElectionStatusDraft {
		return entities.Position{}, domainerrors.ErrElectionLocked
	}

	positionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Position{}, err
	}
	maxWinners := cmd.MaxWinners
	if maxWinners == 0 {
		maxWinners = 1
	}
	position := entities.Position{
		PositionID:  positionID,
		ElectionID:  election.ElectionID,
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Ordering:    len(election.PositionIDs) + 1,
		MaxWinners:  maxWinners,
		CreatedAt:   uc.now(),
	}
	if err := uc.Elections.AddPosition(ctx, position); err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return entities.Position{}, domainerrors.ErrElectionLocked
		}
		return entities.Position{}, err
	}
	application.ResolveLogger(uc.Logger).Info("position added",
		"event", "election_position_added",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", position.ElectionID,
		"position_id", position.PositionID,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return position, nil
}

func (uc RegistryUseCase) AddCandidate(ctx context.Context, cmd AddCandidateCommand) (entities.Candidate, error) {
	displayName := strings.TrimSpace(cmd.DisplayName)
	status := cmd.Status
	if status == "" {
		status = entities.CandidateStatusPending
	}
	if displayName == "" || !status.Valid() {
		return entities.Candidate{}, domainerrors.ErrInvalidInput
	}

	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.Candidate{}, err
	}
	if election.Status != entities.ElectionStatusDraft {
		return entities.Candidate{}, domainerrors.ErrElectionLocked
	}
	positions, err := uc.Elections.ListPositions(ctx, election.ElectionID)
	if err != nil {
		return entities.Candidate{}, err
	}
	if !hasPosition(positions, strings.TrimSpace(cmd.PositionID)) {
		return entities.Candidate{}, domainerrors.ErrPositionNotFound
	}
	existing, err := uc.Elections.ListCandidates(ctx, election.ElectionID)
	if err != nil {
		return entities.Candidate{}, err
	}
	ordinal := 1
	for _, candidate := range existing {
		if candidate.PositionID == strings.TrimSpace(cmd.PositionID) {
			ordinal++
		}
	}

	candidateID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Candidate{}, err
	}
	now := uc.now()
	candidate := entities.Candidate{
		CandidateID: candidateID,
		PositionID:  strings.TrimSpace(cmd.PositionID),
		ElectionID:  election.ElectionID,
		DisplayName: displayName,
		Manifesto:   strings.TrimSpace(cmd.Manifesto),
		Status:      status,
		Ordinal:     ordinal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.Elections.AddCandidate(ctx, candidate); err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return entities.Candidate{}, domainerrors.ErrElectionLocked
		}
		return entities.Candidate{}, err
	}
	application.ResolveLogger(uc.Logger).Info("candidate registered",
		"event", "election_candidate_added",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", candidate.ElectionID,
		"position_id", candidate.PositionID,
		"candidate_id", candidate.CandidateID,
		"status", string(candidate.Status),
	)
	return candidate, nil
}

// ChangeCandidateStatus records approval, withdrawal or disqualification.
// Votes already cast for a candidate who leaves the race stay on the ledger
// and are reported as voided by the tally.
func (uc RegistryUseCase) ChangeCandidateStatus(ctx context.Context, cmd ChangeCandidateStatusCommand) (entities.Candidate, error) {
	logger := application.ResolveLogger(uc.Logger)
	candidate, err := uc.Elections.GetCandidate(ctx, strings.TrimSpace(cmd.CandidateID))
	if err != nil {
		return entities.Candidate{}, err
	}
	if electionID := strings.TrimSpace(cmd.ElectionID); electionID != "" && electionID != candidate.ElectionID {
		return entities.Candidate{}, domainerrors.ErrCandidateNotFound
	}
	if candidate.Status == cmd.Status {
		return candidate, nil
	}
	election, err := uc.Elections.GetElection(ctx, candidate.ElectionID)
	if err != nil {
		return entities.Candidate{}, err
	}
	if err := services.CheckCandidateStatusChange(election.Status, candidate.Status, cmd.Status); err != nil {
		logger.Warn("candidate status change rejected",
			"event", "election_candidate_status_rejected",
			"module", "governance/election-service",
			"layer", "application",
			"election_id", election.ElectionID,
			"candidate_id", candidate.CandidateID,
			"election_status", string(election.Status),
			"from", string(candidate.Status),
			"to", string(cmd.Status),
		)
		return entities.Candidate{}, err
	}

	now := uc.now()
	envelope, err := newElectionEnvelope(ctx, uc.IDGen, EventCandidateStatusChanged, election.ElectionID, now, map[string]any{
		"election_id":  election.ElectionID,
		"position_id":  candidate.PositionID,
		"candidate_id": candidate.CandidateID,
		"from":         string(candidate.Status),
		"to":           string(cmd.Status),
		"reason":       strings.TrimSpace(cmd.Reason),
		"actor_id":     strings.TrimSpace(cmd.ActorID),
		"occurred_at":  now.Format(time.RFC3339),
	})
	if err != nil {
		return entities.Candidate{}, err
	}
	updated, err := uc.Elections.ChangeCandidateStatus(ctx, ports.CandidateStatusChange{
		CandidateID:    candidate.CandidateID,
		ElectionID:     election.ElectionID,
		From:           candidate.Status,
		To:             cmd.Status,
		ElectionStatus: election.Status,
		At:             now,
		Events:         []ports.EventEnvelope{envelope},
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return entities.Candidate{}, domainerrors.ErrElectionLocked
		}
		return entities.Candidate{}, err
	}
	logger.Info("candidate status changed",
		"event", "election_candidate_status_changed",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", election.ElectionID,
		"candidate_id", updated.CandidateID,
		"from", string(candidate.Status),
		"to", string(updated.Status),
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return updated, nil
}

// TransitionElection applies one lifecycle step. A rejected request returns an
// InvalidTransitionError naming both states and leaves the election untouched.
func (uc RegistryUseCase) TransitionElection(ctx context.Context, cmd TransitionElectionCommand) (entities.Election, error) {
	logger := application.ResolveLogger(uc.Logger)
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.Election{}, err
	}
	to := entities.ElectionStatus(strings.ToLower(strings.TrimSpace(string(cmd.ToStatus))))

	var (
		positions  []entities.Position
		candidates []entities.Candidate
	)
	if election.Status == entities.ElectionStatusDraft && to == entities.ElectionStatusUpcoming {
		if positions, err = uc.Elections.ListPositions(ctx, election.ElectionID); err != nil {
			return entities.Election{}, err
		}
		if candidates, err = uc.Elections.ListCandidates(ctx, election.ElectionID); err != nil {
			return entities.Election{}, err
		}
	}

	now := uc.now()
	if err := services.CheckTransition(election, positions, candidates, to, now, cmd.Manual); err != nil {
		logger.Warn("election transition rejected",
			"event", "election_transition_rejected",
			"module", "governance/election-service",
			"layer", "application",
			"election_id", election.ElectionID,
			"from", string(election.Status),
			"to", string(to),
			"manual", cmd.Manual,
			"error", err.Error(),
		)
		return entities.Election{}, err
	}

	envelope, err := newElectionEnvelope(ctx, uc.IDGen, EventElectionTransitioned, election.ElectionID, now, map[string]any{
		"election_id": election.ElectionID,
		"from":        string(election.Status),
		"to":          string(to),
		"manual":      cmd.Manual,
		"actor_id":    strings.TrimSpace(cmd.ActorID),
		"occurred_at": now.Format(time.RFC3339),
	})
	if err != nil {
		return entities.Election{}, err
	}
	updated, err := uc.Elections.TransitionElection(ctx, ports.ElectionTransition{
		ElectionID: election.ElectionID,
		From:       election.Status,
		To:         to,
		At:         now,
		Events:     []ports.EventEnvelope{envelope},
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			current := election.Status
			if latest, getErr := uc.Elections.GetElection(ctx, election.ElectionID); getErr == nil {
				current = latest.Status
			}
			return entities.Election{}, &domainerrors.InvalidTransitionError{
				From:   string(current),
				To:     string(to),
				Reason: "election changed concurrently",
			}
		}
		return entities.Election{}, err
	}

	if uc.Metrics != nil {
		uc.Metrics.ObserveTransition(string(election.Status), string(updated.Status))
	}
	logger.Info("election transitioned",
		"event", "election_transitioned",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", updated.ElectionID,
		"from", string(election.Status),
		"to", string(updated.Status),
		"manual", cmd.Manual,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return updated, nil
}

func (uc RegistryUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func hasPosition(positions []entities.Position, positionID string) bool {
	for _, position := range positions {
		if position.PositionID == positionID {
			return true
		}
	}
	return false
}
