package services

import (
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
)

// CheckTransition evaluates the lifecycle guard for moving an election to the
// requested status. Positions and candidates are needed only for the
// draft -> upcoming guard.
func CheckTransition(
	election entities.Election,
	positions []entities.Position,
	candidates []entities.Candidate,
	to entities.ElectionStatus,
	now time.Time,
	manual bool,
) error {
	from := election.Status
	reject := func(reason string) error {
		return &domainerrors.InvalidTransitionError{From: string(from), To: string(to), Reason: reason}
	}

	if !to.Valid() {
		return reject("unknown target state")
	}
	if from == to {
		return reject("election is already " + string(from))
	}
	if from.Terminal() {
		return reject("election is " + string(from))
	}
	if to == entities.ElectionStatusCancelled {
		return nil
	}

	switch {
	case from == entities.ElectionStatusDraft && to == entities.ElectionStatusUpcoming:
		if len(ContestedPositions(election, positions, candidates)) == 0 {
			return reject("at least one position needs an approved candidate")
		}
		return nil
	case from == entities.ElectionStatusUpcoming && to == entities.ElectionStatusOngoing:
		if !manual && now.Before(election.StartsAt) {
			return reject("voting opens at " + election.StartsAt.UTC().Format(time.RFC3339))
		}
		return nil
	case from == entities.ElectionStatusOngoing && to == entities.ElectionStatusEnded:
		if !manual && now.Before(election.EndsAt) {
			return reject("voting closes at " + election.EndsAt.UTC().Format(time.RFC3339))
		}
		return nil
	default:
		return reject("transition is not allowed")
	}
}

// CheckCandidateStatusChange enforces when candidate status may change. Draft
// elections accept any change; once the ballot shape is locked only approved
// candidates may leave the race.
func CheckCandidateStatusChange(
	electionStatus entities.ElectionStatus,
	from entities.CandidateStatus,
	to entities.CandidateStatus,
) error {
	if !to.Valid() {
		return domainerrors.ErrInvalidInput
	}
	switch electionStatus {
	case entities.ElectionStatusDraft:
		return nil
	case entities.ElectionStatusUpcoming, entities.ElectionStatusOngoing:
		if from != entities.CandidateStatusApproved {
			return domainerrors.ErrElectionLocked
		}
		if to != entities.CandidateStatusDisqualified && to != entities.CandidateStatusWithdrew {
			return domainerrors.ErrElectionLocked
		}
		return nil
	default:
		return domainerrors.ErrElectionLocked
	}
}
