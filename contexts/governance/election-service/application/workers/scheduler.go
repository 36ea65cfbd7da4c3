package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "guildhall/contexts/governance/election-service/application"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"
)

// Transitioner is the registry command the scheduler drives.
type Transitioner interface {
	TransitionElection(ctx context.Context, cmd commands.TransitionElectionCommand) (entities.Election, error)
}

// ElectionScheduler opens elections whose start time has passed and closes
// elections whose end time has passed.
type ElectionScheduler struct {
	Elections ports.ElectionRepository
	Registry  Transitioner
	Clock     ports.Clock
	ActorID   string
	Logger    *slog.Logger
}

// RunOnce advances every due election by one step. An election another
// process already moved is skipped rather than treated as a failure.
func (s ElectionScheduler) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	due, err := s.Elections.ListElectionsDue(ctx, now)
	if err != nil {
		logger.Error("election scheduler list failed",
			"event", "election_scheduler_list_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	actor := s.ActorID
	if actor == "" {
		actor = "scheduler"
	}
	advanced := 0
	for _, election := range due {
		var to entities.ElectionStatus
		switch election.Status {
		case entities.ElectionStatusUpcoming:
			to = entities.ElectionStatusOngoing
		case entities.ElectionStatusOngoing:
			to = entities.ElectionStatusEnded
		default:
			continue
		}
		_, err := s.Registry.TransitionElection(ctx, commands.TransitionElectionCommand{
			ElectionID: election.ElectionID,
			ToStatus:   to,
			ActorID:    actor,
		})
		if errors.Is(err, domainerrors.ErrInvalidTransition) {
			logger.Debug("election scheduler skipped election",
				"event", "election_scheduler_skipped",
				"module", "governance/election-service",
				"layer", "worker",
				"election_id", election.ElectionID,
				"error", err.Error(),
			)
			continue
		}
		if err != nil {
			logger.Error("election scheduler transition failed",
				"event", "election_scheduler_transition_failed",
				"module", "governance/election-service",
				"layer", "worker",
				"election_id", election.ElectionID,
				"to", string(to),
				"error", err.Error(),
			)
			return advanced, err
		}
		advanced++
	}
	if advanced > 0 {
		logger.Info("election scheduler cycle completed",
			"event", "election_scheduler_completed",
			"module", "governance/election-service",
			"layer", "worker",
			"advanced_count", advanced,
		)
	}
	return advanced, nil
}
