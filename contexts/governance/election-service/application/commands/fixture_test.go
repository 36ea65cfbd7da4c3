package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"guildhall/contexts/governance/election-service/adapters/memory"
	"guildhall/contexts/governance/election-service/domain/entities"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu          sync.Mutex
	ballots     map[string]int
	transitions []string
}

func (m *recordingMetrics) ObserveBallot(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ballots == nil {
		m.ballots = map[string]int{}
	}
	m.ballots[outcome]++
}

func (m *recordingMetrics) ObserveTransition(from string, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *recordingMetrics) ObserveTally(time.Duration, bool) {}

func (m *recordingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ballots[outcome]
}

type electionFixture struct {
	store     *memory.Store
	clock     *fixedClock
	metrics   *recordingMetrics
	registry  RegistryUseCase
	ballots   BallotUseCase
	election  entities.Election
	positions map[string]entities.Position
	cands     map[string]entities.Candidate
}

// newElectionFixture drafts an election with the given positions, each
// listing approved candidate names, and leaves it in draft.
func newElectionFixture(t *testing.T, roll int, shape map[string][]string, order ...string) *electionFixture {
	t.Helper()
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	metrics := &recordingMetrics{}
	f := &electionFixture{
		store:   store,
		clock:   clock,
		metrics: metrics,
		registry: RegistryUseCase{
			Elections: store,
			Clock:     clock,
			IDGen:     store,
			Metrics:   metrics,
		},
		ballots: BallotUseCase{
			Elections:   store,
			Ledger:      store,
			Eligibility: store,
			Clock:       clock,
			IDGen:       store,
			Metrics:     metrics,
		},
		positions: map[string]entities.Position{},
		cands:     map[string]entities.Candidate{},
	}

	ctx := context.Background()
	election, err := f.registry.CreateElection(ctx, CreateElectionCommand{
		ActorID:             "organizer-1",
		Title:               "Annual general meeting",
		StartsAt:            clock.now.Add(time.Hour),
		EndsAt:              clock.now.Add(48 * time.Hour),
		TotalEligibleVoters: roll,
	})
	if err != nil {
		t.Fatalf("create election failed: %v", err)
	}
	for _, name := range order {
		position, err := f.registry.AddPosition(ctx, AddPositionCommand{
			ElectionID: election.ElectionID,
			ActorID:    "organizer-1",
			Name:       name,
		})
		if err != nil {
			t.Fatalf("add position %s failed: %v", name, err)
		}
		f.positions[name] = position
		for _, display := range shape[name] {
			clock.Advance(time.Second)
			candidate, err := f.registry.AddCandidate(ctx, AddCandidateCommand{
				ElectionID:  election.ElectionID,
				PositionID:  position.PositionID,
				ActorID:     "organizer-1",
				DisplayName: display,
				Status:      entities.CandidateStatusApproved,
			})
			if err != nil {
				t.Fatalf("add candidate %s failed: %v", display, err)
			}
			f.cands[display] = candidate
		}
	}
	f.election, _ = store.GetElection(ctx, election.ElectionID)
	store.OpenRoll(election.ElectionID)
	return f
}

// open publishes the election and starts voting.
func (f *electionFixture) open(t *testing.T) {
	t.Helper()
	f.transition(t, entities.ElectionStatusUpcoming, false)
	f.transition(t, entities.ElectionStatusOngoing, true)
}

func (f *electionFixture) transition(t *testing.T, to entities.ElectionStatus, manual bool) entities.Election {
	t.Helper()
	election, err := f.registry.TransitionElection(context.Background(), TransitionElectionCommand{
		ElectionID: f.election.ElectionID,
		ToStatus:   to,
		Manual:     manual,
		ActorID:    "organizer-1",
	})
	if err != nil {
		t.Fatalf("transition to %s failed: %v", to, err)
	}
	f.election = election
	return election
}

func (f *electionFixture) pick(pairs ...string) []entities.Selection {
	out := make([]entities.Selection, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, entities.Selection{
			PositionID:  f.positions[pairs[i]].PositionID,
			CandidateID: f.cands[pairs[i+1]].CandidateID,
		})
	}
	return out
}

func (f *electionFixture) submit(voterID string, pairs ...string) (SubmitBallotResult, error) {
	return f.ballots.SubmitBallot(context.Background(), SubmitBallotCommand{
		ElectionID: f.election.ElectionID,
		VoterID:    voterID,
		Selections: f.pick(pairs...),
	})
}
