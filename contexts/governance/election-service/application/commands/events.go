package commands

import (
	"context"
	"encoding/json"
	"time"

	"guildhall/contexts/governance/election-service/ports"
)

const (
	EventElectionTransitioned   = "election.transitioned"
	EventCandidateStatusChanged = "candidate.status_changed"
	EventBallotConfirmed        = "ballot.confirmed"
)

// newElectionEnvelope builds outbox envelopes. All election-service events are
// partitioned by election so consumers see one election's history in order.
func newElectionEnvelope(
	ctx context.Context,
	idGen ports.IDGenerator,
	eventType string,
	electionID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "election-service",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "election_id",
		PartitionKey:     electionID,
		Data:             payload,
	}, nil
}
