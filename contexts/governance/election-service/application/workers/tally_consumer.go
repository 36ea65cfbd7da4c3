package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "guildhall/contexts/governance/election-service/application"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/domain/entities"
	"guildhall/contexts/governance/election-service/ports"
)

const defaultTallyCG = "election-service-tally-cg"

type ResultsFinalizer interface {
	FinalizeResults(ctx context.Context, electionID string) (entities.ElectionResults, error)
}

type CounterRebuilder interface {
	RebuildVoteCounts(ctx context.Context, cmd commands.RebuildVoteCountsCommand) (commands.RebuildVoteCountsResult, error)
}

// TallyConsumer stores the final tally when an election ends and rebuilds the
// candidate counters after a candidate leaves the race.
type TallyConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Results       ResultsFinalizer
	Counters      CounterRebuilder
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

func (c TallyConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultTallyCG
	}
	subscriptions := []struct {
		topic   string
		handler func(context.Context, ports.EventEnvelope) error
	}{
		{topic: commands.EventElectionTransitioned, handler: c.handleElectionTransitioned},
		{topic: commands.EventCandidateStatusChanged, handler: c.handleCandidateStatusChanged},
	}
	for _, sub := range subscriptions {
		if err := c.Subscriber.Subscribe(ctx, sub.topic, group, sub.handler); err != nil {
			logger.Error("tally consumer subscribe failed",
				"event", "election_tally_consumer_subscribe_failed",
				"module", "governance/election-service",
				"layer", "worker",
				"topic", sub.topic,
				"consumer_group", group,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("tally consumer subscriptions active",
		"event", "election_tally_consumer_started",
		"module", "governance/election-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c TallyConsumer) handleElectionTransitioned(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var payload struct {
		ElectionID string `json:"election_id"`
		To         string `json:"to"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("election.transitioned payload decode failed",
			"event", "election_transitioned_decode_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if entities.ElectionStatus(payload.To) != entities.ElectionStatusEnded {
		return nil
	}
	if replayed, err := c.reserveEvent(ctx, event); err != nil || replayed {
		return err
	}

	results, err := c.Results.FinalizeResults(ctx, payload.ElectionID)
	if err != nil {
		c.releaseEvent(ctx, event)
		logger.Error("final tally failed",
			"event", "election_final_tally_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"election_id", payload.ElectionID,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("election.transitioned consumed",
		"event", "election_transitioned_consumed",
		"module", "governance/election-service",
		"layer", "worker",
		"event_id", event.EventID,
		"election_id", payload.ElectionID,
		"ballots_counted", results.BallotsCounted,
	)
	return nil
}

func (c TallyConsumer) handleCandidateStatusChanged(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	if replayed, err := c.reserveEvent(ctx, event); err != nil || replayed {
		return err
	}
	var payload struct {
		ElectionID string `json:"election_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("candidate.status_changed payload decode failed",
			"event", "election_candidate_status_decode_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	result, err := c.Counters.RebuildVoteCounts(ctx, commands.RebuildVoteCountsCommand{
		ElectionID: payload.ElectionID,
		ActorID:    "tally-consumer",
	})
	if err != nil {
		c.releaseEvent(ctx, event)
		logger.Error("vote counter rebuild failed",
			"event", "election_vote_counts_rebuild_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"election_id", payload.ElectionID,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("candidate.status_changed consumed",
		"event", "election_candidate_status_consumed",
		"module", "governance/election-service",
		"layer", "worker",
		"event_id", event.EventID,
		"election_id", result.ElectionID,
		"ballots_counted", result.BallotsCounted,
	)
	return nil
}

func (c TallyConsumer) reserveEvent(ctx context.Context, event ports.EventEnvelope) (bool, error) {
	if c.Dedup == nil {
		return false, nil
	}
	replayed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(c.dedupTTL()))
	if err != nil {
		application.ResolveLogger(c.Logger).Error("tally event dedupe failed",
			"event", "election_tally_event_dedupe_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
		return false, err
	}
	return replayed, nil
}

// releaseEvent frees the reservation of an event whose handling failed. Both
// handlers are idempotent, so a redelivery may safely run again.
func (c TallyConsumer) releaseEvent(ctx context.Context, event ports.EventEnvelope) {
	if c.Dedup == nil {
		return
	}
	if err := c.Dedup.ReleaseEvent(context.WithoutCancel(ctx), event.EventID); err != nil {
		application.ResolveLogger(c.Logger).Error("tally event release failed",
			"event", "election_tally_event_release_failed",
			"module", "governance/election-service",
			"layer", "worker",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
	}
}

func (c TallyConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (c TallyConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}
