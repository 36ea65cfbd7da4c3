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

const (
	defaultEligibilityTimeout = 2 * time.Second
	defaultPersistenceTimeout = 5 * time.Second
)

const (
	BallotOutcomeConfirmed    = "confirmed"
	BallotOutcomeNotOpen      = "not_open"
	BallotOutcomeNotEligible  = "not_eligible"
	BallotOutcomeAlreadyVoted = "already_voted"
	BallotOutcomeIncomplete   = "incomplete"
	BallotOutcomeInvalid      = "invalid_selection"
	BallotOutcomeUnavailable  = "unavailable"
)

type SubmitBallotCommand struct {
	ElectionID string
	VoterID    string
	Selections []entities.Selection
}

type SubmitBallotResult struct {
	BallotID    string
	ElectionID  string
	SubmittedAt time.Time
}

type RebuildVoteCountsCommand struct {
	ElectionID string
	ActorID    string
}

type RebuildVoteCountsResult struct {
	ElectionID     string
	BallotsCounted int
	Counts         map[string]int
}

// BallotUseCase accepts one complete ballot per eligible voter per election.
// Every rejection happens before the ledger is written.
type BallotUseCase struct {
	Elections          ports.ElectionRepository
	Ledger             ports.BallotLedger
	Eligibility        ports.EligibilityChecker
	Clock              ports.Clock
	IDGen              ports.IDGenerator
	Metrics            ports.Metrics
	Logger             *slog.Logger
	EligibilityTimeout time.Duration
	PersistenceTimeout time.Duration
}

func (uc BallotUseCase) SubmitBallot(ctx context.Context, cmd SubmitBallotCommand) (SubmitBallotResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	electionID := strings.TrimSpace(cmd.ElectionID)
	voterID := strings.TrimSpace(cmd.VoterID)
	if electionID == "" || voterID == "" {
		return SubmitBallotResult{}, domainerrors.ErrInvalidInput
	}
	selections := normalizeSelections(cmd.Selections)

	election, err := uc.getElection(ctx, electionID)
	if err != nil {
		uc.observe(outcomeOf(err))
		return SubmitBallotResult{}, err
	}
	if election.Status != entities.ElectionStatusOngoing {
		uc.observe(BallotOutcomeNotOpen)
		return SubmitBallotResult{}, domainerrors.ErrElectionNotOpen
	}

	if !uc.isEligible(ctx, logger, voterID, electionID) {
		uc.observe(BallotOutcomeNotEligible)
		return SubmitBallotResult{}, domainerrors.ErrNotEligible
	}

	if _, found, err := uc.getBallotByVoter(ctx, electionID, voterID); err != nil {
		uc.observe(BallotOutcomeUnavailable)
		return SubmitBallotResult{}, err
	} else if found {
		uc.observe(BallotOutcomeAlreadyVoted)
		return SubmitBallotResult{}, domainerrors.ErrAlreadyVoted
	}

	positions, candidates, err := uc.ballotShapeInputs(ctx, electionID)
	if err != nil {
		uc.observe(BallotOutcomeUnavailable)
		return SubmitBallotResult{}, err
	}
	shape := services.ContestedPositions(election, positions, candidates)
	if err := services.CheckCompleteness(shape, positions, selections); err != nil {
		uc.observe(BallotOutcomeIncomplete)
		logger.Info("ballot rejected as incomplete",
			"event", "election_ballot_incomplete",
			"module", "governance/election-service",
			"layer", "application",
			"election_id", electionID,
			"error", err.Error(),
		)
		return SubmitBallotResult{}, err
	}
	if err := services.CheckSelections(positions, candidates, selections); err != nil {
		uc.observe(BallotOutcomeInvalid)
		logger.Info("ballot rejected for invalid selection",
			"event", "election_ballot_invalid_selection",
			"module", "governance/election-service",
			"layer", "application",
			"election_id", electionID,
			"error", err.Error(),
		)
		return SubmitBallotResult{}, err
	}

	ballotID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		uc.observe(BallotOutcomeUnavailable)
		return SubmitBallotResult{}, domainerrors.Unavailable(err)
	}
	now := uc.now()
	ballot := entities.Ballot{
		BallotID:    ballotID,
		ElectionID:  electionID,
		VoterID:     voterID,
		Selections:  canonicalSelections(shape, selections),
		Status:      entities.BallotStatusConfirmed,
		SubmittedAt: now,
	}
	envelope, err := newElectionEnvelope(ctx, uc.IDGen, EventBallotConfirmed, electionID, now, map[string]any{
		"election_id":  electionID,
		"ballot_id":    ballotID,
		"positions":    len(ballot.Selections),
		"submitted_at": now.Format(time.RFC3339),
	})
	if err != nil {
		uc.observe(BallotOutcomeUnavailable)
		return SubmitBallotResult{}, domainerrors.Unavailable(err)
	}

	if err := uc.confirm(ctx, ports.BallotCommit{Ballot: ballot, Events: []ports.EventEnvelope{envelope}}); err != nil {
		uc.observe(outcomeOf(err))
		if errors.Is(err, domainerrors.ErrPersistenceUnavailable) {
			logger.Error("ballot commit failed",
				"event", "election_ballot_commit_failed",
				"module", "governance/election-service",
				"layer", "application",
				"election_id", electionID,
				"error", err.Error(),
			)
		}
		return SubmitBallotResult{}, err
	}

	uc.observe(BallotOutcomeConfirmed)
	logger.Info("ballot confirmed",
		"event", "election_ballot_confirmed",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", electionID,
		"ballot_id", ballotID,
	)
	return SubmitBallotResult{
		BallotID:    ballotID,
		ElectionID:  electionID,
		SubmittedAt: now,
	}, nil
}

// RebuildVoteCounts recomputes the denormalized candidate counters from
// confirmed ballots. The ledger stays authoritative; counters only speed up
// listings.
func (uc BallotUseCase) RebuildVoteCounts(ctx context.Context, cmd RebuildVoteCountsCommand) (RebuildVoteCountsResult, error) {
	electionID := strings.TrimSpace(cmd.ElectionID)
	if _, err := uc.getElection(ctx, electionID); err != nil {
		return RebuildVoteCountsResult{}, err
	}

	ctx, cancel := uc.persistenceContext(ctx)
	defer cancel()
	ballots, err := uc.Ledger.ListBallots(ctx, electionID)
	if err != nil {
		return RebuildVoteCountsResult{}, timeoutAware(ctx, err)
	}
	counts := make(map[string]int)
	counted := 0
	for _, ballot := range ballots {
		if ballot.Status != entities.BallotStatusConfirmed {
			continue
		}
		counted++
		for _, selection := range ballot.Selections {
			counts[selection.CandidateID]++
		}
	}
	if err := uc.Ledger.RebuildVoteCounts(ctx, electionID, counts, uc.now()); err != nil {
		return RebuildVoteCountsResult{}, timeoutAware(ctx, err)
	}

	application.ResolveLogger(uc.Logger).Info("vote counters rebuilt",
		"event", "election_vote_counts_rebuilt",
		"module", "governance/election-service",
		"layer", "application",
		"election_id", electionID,
		"ballots_counted", counted,
		"actor_id", strings.TrimSpace(cmd.ActorID),
	)
	return RebuildVoteCountsResult{
		ElectionID:     electionID,
		BallotsCounted: counted,
		Counts:         counts,
	}, nil
}

// isEligible fails closed: a collaborator error or timeout denies the vote.
func (uc BallotUseCase) isEligible(ctx context.Context, logger *slog.Logger, voterID string, electionID string) bool {
	if uc.Eligibility == nil {
		return false
	}
	timeout := uc.EligibilityTimeout
	if timeout <= 0 {
		timeout = defaultEligibilityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eligible, err := uc.Eligibility.IsEligible(ctx, voterID, electionID)
	if err != nil {
		logger.Warn("eligibility check failed; denying ballot",
			"event", "election_eligibility_unavailable",
			"module", "governance/election-service",
			"layer", "application",
			"election_id", electionID,
			"error", err.Error(),
		)
		return false
	}
	return eligible
}

func (uc BallotUseCase) getElection(ctx context.Context, electionID string) (entities.Election, error) {
	ctx, cancel := uc.persistenceContext(ctx)
	defer cancel()
	election, err := uc.Elections.GetElection(ctx, electionID)
	if err != nil {
		return entities.Election{}, timeoutAware(ctx, err)
	}
	return election, nil
}

func (uc BallotUseCase) getBallotByVoter(ctx context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	ctx, cancel := uc.persistenceContext(ctx)
	defer cancel()
	ballot, found, err := uc.Ledger.GetBallotByVoter(ctx, electionID, voterID)
	if err != nil {
		return entities.Ballot{}, false, timeoutAware(ctx, err)
	}
	return ballot, found, nil
}

func (uc BallotUseCase) ballotShapeInputs(ctx context.Context, electionID string) ([]entities.Position, []entities.Candidate, error) {
	ctx, cancel := uc.persistenceContext(ctx)
	defer cancel()
	positions, err := uc.Elections.ListPositions(ctx, electionID)
	if err != nil {
		return nil, nil, timeoutAware(ctx, err)
	}
	candidates, err := uc.Elections.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, nil, timeoutAware(ctx, err)
	}
	return positions, candidates, nil
}

func (uc BallotUseCase) confirm(ctx context.Context, commit ports.BallotCommit) error {
	ctx, cancel := uc.persistenceContext(ctx)
	defer cancel()
	if err := uc.Ledger.ConfirmBallot(ctx, commit); err != nil {
		return timeoutAware(ctx, err)
	}
	return nil
}

func (uc BallotUseCase) persistenceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := uc.PersistenceTimeout
	if timeout <= 0 {
		timeout = defaultPersistenceTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (uc BallotUseCase) observe(outcome string) {
	if uc.Metrics != nil {
		uc.Metrics.ObserveBallot(outcome)
	}
}

func (uc BallotUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

// timeoutAware turns an expired persistence deadline into the retryable
// unavailable error while leaving domain errors untouched.
func timeoutAware(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, domainerrors.ErrPersistenceUnavailable) {
			return domainerrors.Unavailable(err)
		}
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrAlreadyVoted):
		return BallotOutcomeAlreadyVoted
	case errors.Is(err, domainerrors.ErrElectionNotOpen):
		return BallotOutcomeNotOpen
	case errors.Is(err, domainerrors.ErrNotEligible):
		return BallotOutcomeNotEligible
	case errors.Is(err, domainerrors.ErrIncompleteBallot):
		return BallotOutcomeIncomplete
	case errors.Is(err, domainerrors.ErrInvalidSelection):
		return BallotOutcomeInvalid
	default:
		return BallotOutcomeUnavailable
	}
}

func normalizeSelections(items []entities.Selection) []entities.Selection {
	out := make([]entities.Selection, 0, len(items))
	for _, item := range items {
		out = append(out, entities.Selection{
			PositionID:  strings.TrimSpace(item.PositionID),
			CandidateID: strings.TrimSpace(item.CandidateID),
		})
	}
	return out
}

// canonicalSelections stores selections in ballot order. The caller has
// already checked each contested position appears exactly once.
func canonicalSelections(shape []entities.BallotFormPosition, selections []entities.Selection) []entities.Selection {
	byPosition := make(map[string]entities.Selection, len(selections))
	for _, selection := range selections {
		byPosition[selection.PositionID] = selection
	}
	out := make([]entities.Selection, 0, len(shape))
	for _, item := range shape {
		out = append(out, byPosition[item.Position.PositionID])
	}
	return out
}
