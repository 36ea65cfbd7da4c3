package ports

import (
	"context"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	contractsv1 "guildhall/contracts/gen/events/v1"
)

// ElectionRepository owns Election, Position and Candidate records. Every
// mutating call is a single atomic unit guarded by the expected state it was
// validated against; a lost race returns domain ErrConflict.
type ElectionRepository interface {
	CreateElection(ctx context.Context, election entities.Election) error
	UpdateElectionDetails(ctx context.Context, election entities.Election) error
	GetElection(ctx context.Context, electionID string) (entities.Election, error)
	ListElections(ctx context.Context, status entities.ElectionStatus) ([]entities.Election, error)
	ListElectionsDue(ctx context.Context, now time.Time) ([]entities.Election, error)

	AddPosition(ctx context.Context, position entities.Position) error
	ListPositions(ctx context.Context, electionID string) ([]entities.Position, error)

	AddCandidate(ctx context.Context, candidate entities.Candidate) error
	GetCandidate(ctx context.Context, candidateID string) (entities.Candidate, error)
	ListCandidates(ctx context.Context, electionID string) ([]entities.Candidate, error)
	ChangeCandidateStatus(ctx context.Context, change CandidateStatusChange) (entities.Candidate, error)

	TransitionElection(ctx context.Context, transition ElectionTransition) (entities.Election, error)
}

// ElectionTransition is applied as compare-and-swap on From. Moving to
// cancelled also flags confirmed ballots informational in the same unit.
type ElectionTransition struct {
	ElectionID string
	From       entities.ElectionStatus
	To         entities.ElectionStatus
	At         time.Time
	Events     []EventEnvelope
}

// CandidateStatusChange is applied only while the candidate still has From
// and the owning election still has ElectionStatus.
type CandidateStatusChange struct {
	CandidateID    string
	ElectionID     string
	From           entities.CandidateStatus
	To             entities.CandidateStatus
	ElectionStatus entities.ElectionStatus
	At             time.Time
	Events         []EventEnvelope
}

// BallotCommit is everything ConfirmBallot writes in one unit: the ballot and
// its selections, the election ballot counter, candidate vote counters and
// outbox events.
type BallotCommit struct {
	Ballot entities.Ballot
	Events []EventEnvelope
}

// BallotLedger is the single source of truth for cast votes.
//
// ConfirmBallot must reject a second confirmed ballot for the same
// (election, voter) with ErrAlreadyVoted, and must reject the write with
// ErrElectionNotOpen if the election left ongoing before commit.
type BallotLedger interface {
	ConfirmBallot(ctx context.Context, commit BallotCommit) error
	GetBallotByVoter(ctx context.Context, electionID string, voterID string) (entities.Ballot, bool, error)
	ListBallots(ctx context.Context, electionID string) ([]entities.Ballot, error)
	RebuildVoteCounts(ctx context.Context, electionID string, counts map[string]int, at time.Time) error
}

// EligibilityChecker is the external membership/role predicate.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, voterID string, electionID string) (bool, error)
}

type ResultSnapshot struct {
	ElectionID string
	Version    string
	Results    entities.ElectionResults
	CreatedAt  time.Time
}

// ResultSnapshotStore keeps the final tally computed when an election ends.
type ResultSnapshotStore interface {
	SaveResultSnapshot(ctx context.Context, snapshot ResultSnapshot) error
	GetResultSnapshot(ctx context.Context, electionID string) (ResultSnapshot, bool, error)
}

// ResultsCache coalesces and caches tallies by ledger version.
type ResultsCache interface {
	Load(
		ctx context.Context,
		version string,
		compute func(context.Context) (entities.ElectionResults, error),
	) (entities.ElectionResults, error)
}

// Metrics records ledger and tally outcomes.
type Metrics interface {
	ObserveBallot(outcome string)
	ObserveTransition(from string, to string)
	ObserveTally(duration time.Duration, provisional bool)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// EventDedupStore records consumed events. ReleaseEvent drops a reservation
// whose handling failed so a redelivery is processed again.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}
