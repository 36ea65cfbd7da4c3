package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"guildhall/contexts/governance/election-service/adapters/memory"
	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"
)

func TestSubmitBallotSecondAttemptIsAlreadyVoted(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice", "Bob"}}, "President")
	f.open(t)

	result, err := f.submit("voter-1", "President", "Alice")
	if err != nil {
		t.Fatalf("submit ballot failed: %v", err)
	}
	if result.BallotID == "" {
		t.Fatalf("expected ballot id")
	}

	_, err = f.submit("voter-1", "President", "Bob")
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}

	election, _ := f.store.GetElection(context.Background(), f.election.ElectionID)
	if election.BallotsSubmitted != 1 {
		t.Fatalf("expected one ballot submitted, got %d", election.BallotsSubmitted)
	}
	alice, _ := f.store.GetCandidate(context.Background(), f.cands["Alice"].CandidateID)
	bob, _ := f.store.GetCandidate(context.Background(), f.cands["Bob"].CandidateID)
	if alice.VoteCount != 1 || bob.VoteCount != 0 {
		t.Fatalf("expected counters 1/0, got %d/%d", alice.VoteCount, bob.VoteCount)
	}
	if f.metrics.count(BallotOutcomeConfirmed) != 1 || f.metrics.count(BallotOutcomeAlreadyVoted) != 1 {
		t.Fatalf("unexpected ballot metrics %+v", f.metrics.ballots)
	}
}

func TestSubmitBallotIncompleteNamesMissingPosition(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{
		"President": {"Alice", "Bob"},
		"Secretary": {"Sam"},
	}, "President", "Secretary")
	f.open(t)

	_, err := f.submit("voter-1", "President", "Alice")
	var detail *domainerrors.IncompleteBallotError
	if !errors.As(err, &detail) {
		t.Fatalf("expected incomplete ballot error, got %v", err)
	}
	if len(detail.Missing) != 1 || detail.Missing[0].Name != "Secretary" {
		t.Fatalf("expected Secretary missing, got %+v", detail.Missing)
	}
	if !strings.Contains(err.Error(), "Secretary") {
		t.Fatalf("expected message naming Secretary, got %q", err.Error())
	}

	status, found, _ := f.store.GetBallotByVoter(context.Background(), f.election.ElectionID, "voter-1")
	if found {
		t.Fatalf("expected no ballot written, got %+v", status)
	}
}

func TestSubmitBallotRejectedWhenNotOngoing(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice"}}, "President")

	_, err := f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrElectionNotOpen) {
		t.Fatalf("expected election not open for draft, got %v", err)
	}

	f.transition(t, entities.ElectionStatusUpcoming, false)
	_, err = f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrElectionNotOpen) {
		t.Fatalf("expected election not open for upcoming, got %v", err)
	}

	f.transition(t, entities.ElectionStatusOngoing, true)
	f.transition(t, entities.ElectionStatusEnded, true)
	_, err = f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrElectionNotOpen) {
		t.Fatalf("expected election not open for ended, got %v", err)
	}

	ballots, _ := f.store.ListBallots(context.Background(), f.election.ElectionID)
	if len(ballots) != 0 {
		t.Fatalf("expected empty ledger, got %d ballots", len(ballots))
	}
}

func TestSubmitBallotRejectsInvalidSelection(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{
		"President": {"Alice"},
		"Treasurer": {"Carol"},
	}, "President", "Treasurer")
	f.open(t)

	_, err := f.ballots.SubmitBallot(context.Background(), SubmitBallotCommand{
		ElectionID: f.election.ElectionID,
		VoterID:    "voter-1",
		Selections: []entities.Selection{
			{PositionID: f.positions["President"].PositionID, CandidateID: f.cands["Carol"].CandidateID},
			{PositionID: f.positions["Treasurer"].PositionID, CandidateID: f.cands["Carol"].CandidateID},
		},
	})
	if !errors.Is(err, domainerrors.ErrInvalidSelection) {
		t.Fatalf("expected invalid selection, got %v", err)
	}
}

func TestSubmitBallotEligibilityFailsClosed(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice"}}, "President")
	f.open(t)
	roll := memory.NewStore()
	f.ballots.Eligibility = roll

	_, err := f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected not eligible off the roll, got %v", err)
	}

	roll.GrantEligibility(f.election.ElectionID, "voter-1")
	roll.SetEligibilityError(errors.New("membership service down"))
	_, err = f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected not eligible on collaborator error, got %v", err)
	}

	roll.SetEligibilityError(nil)
	if _, err := f.submit("voter-1", "President", "Alice"); err != nil {
		t.Fatalf("expected ballot accepted once eligible, got %v", err)
	}
}

type slowEligibility struct{}

func (slowEligibility) IsEligible(ctx context.Context, _ string, _ string) (bool, error) {
	<-ctx.Done()
	return true, ctx.Err()
}

func TestSubmitBallotEligibilityTimeoutDenies(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice"}}, "President")
	f.open(t)
	f.ballots.Eligibility = slowEligibility{}
	f.ballots.EligibilityTimeout = 10 * time.Millisecond

	_, err := f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected not eligible after timeout, got %v", err)
	}
	if f.metrics.count(BallotOutcomeNotEligible) != 1 {
		t.Fatalf("expected not_eligible outcome recorded")
	}
}

func TestSubmitBallotRollExhausted(t *testing.T) {
	f := newElectionFixture(t, 1, map[string][]string{"President": {"Alice"}}, "President")
	f.open(t)

	if _, err := f.submit("voter-1", "President", "Alice"); err != nil {
		t.Fatalf("first ballot failed: %v", err)
	}
	_, err := f.submit("voter-2", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected not eligible once the roll is used up, got %v", err)
	}
}

func TestSubmitBallotConcurrentSameVoterConfirmsOnce(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice", "Bob"}}, "President")
	f.open(t)

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		already   int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pick := "Alice"
			if i%2 == 1 {
				pick = "Bob"
			}
			_, err := f.submit("voter-1", "President", pick)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, domainerrors.ErrAlreadyVoted):
				already++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if confirmed != 1 || already != attempts-1 || len(other) != 0 {
		t.Fatalf("expected 1 confirmed and %d already voted, got %d/%d others=%v", attempts-1, confirmed, already, other)
	}
	election, _ := f.store.GetElection(context.Background(), f.election.ElectionID)
	if election.BallotsSubmitted != 1 {
		t.Fatalf("expected ballots_submitted 1, got %d", election.BallotsSubmitted)
	}
	ballots, _ := f.store.ListBallots(context.Background(), f.election.ElectionID)
	if len(ballots) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(ballots))
	}
}

func TestSubmitBallotConcurrentVotersAllCounted(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice", "Bob"}}, "President")
	f.open(t)

	const voters = 40
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pick := "Alice"
			if i%4 == 0 {
				pick = "Bob"
			}
			if _, err := f.submit(fmt.Sprintf("voter-%d", i), "President", pick); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent submit failed: %v", err)
	}

	election, _ := f.store.GetElection(context.Background(), f.election.ElectionID)
	if election.BallotsSubmitted != voters {
		t.Fatalf("expected %d ballots, got %d", voters, election.BallotsSubmitted)
	}
	alice, _ := f.store.GetCandidate(context.Background(), f.cands["Alice"].CandidateID)
	bob, _ := f.store.GetCandidate(context.Background(), f.cands["Bob"].CandidateID)
	if alice.VoteCount+bob.VoteCount != voters || bob.VoteCount != voters/4 {
		t.Fatalf("unexpected counters alice=%d bob=%d", alice.VoteCount, bob.VoteCount)
	}
}

// disqualifyingLedger disqualifies a candidate after SubmitBallot has
// validated the selections but before the ledger commits.
type disqualifyingLedger struct {
	*memory.Store
	registry    RegistryUseCase
	electionID  string
	candidateID string
}

func (l disqualifyingLedger) ConfirmBallot(ctx context.Context, commit ports.BallotCommit) error {
	if _, err := l.registry.ChangeCandidateStatus(ctx, ChangeCandidateStatusCommand{
		ElectionID:  l.electionID,
		CandidateID: l.candidateID,
		ActorID:     "organizer-1",
		Status:      entities.CandidateStatusDisqualified,
	}); err != nil {
		return err
	}
	return l.Store.ConfirmBallot(ctx, commit)
}

func TestSubmitBallotRejectedWhenCandidateDisqualifiedBeforeCommit(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice", "Bob"}}, "President")
	f.open(t)
	alice := f.cands["Alice"]
	f.ballots.Ledger = disqualifyingLedger{
		Store:       f.store,
		registry:    f.registry,
		electionID:  f.election.ElectionID,
		candidateID: alice.CandidateID,
	}

	_, err := f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrInvalidSelection) {
		t.Fatalf("expected invalid selection, got %v", err)
	}
	if f.metrics.count(BallotOutcomeInvalid) != 1 {
		t.Fatalf("expected one invalid outcome, got %d", f.metrics.count(BallotOutcomeInvalid))
	}

	ctx := context.Background()
	if _, found, err := f.store.GetBallotByVoter(ctx, f.election.ElectionID, "voter-1"); err != nil || found {
		t.Fatalf("expected no stored ballot, found=%v err=%v", found, err)
	}
	stored, err := f.store.GetCandidate(ctx, alice.CandidateID)
	if err != nil {
		t.Fatalf("get candidate failed: %v", err)
	}
	if stored.Status != entities.CandidateStatusDisqualified || stored.VoteCount != 0 {
		t.Fatalf("expected disqualified candidate without votes, got %s/%d", stored.Status, stored.VoteCount)
	}
	election, err := f.store.GetElection(ctx, f.election.ElectionID)
	if err != nil {
		t.Fatalf("get election failed: %v", err)
	}
	if election.BallotsSubmitted != 0 {
		t.Fatalf("expected no ballots counted, got %d", election.BallotsSubmitted)
	}

	// The voter is not locked out and can still vote for a standing candidate.
	f.ballots.Ledger = f.store
	if _, err := f.submit("voter-1", "President", "Bob"); err != nil {
		t.Fatalf("resubmit ballot failed: %v", err)
	}
}

type stalledLedger struct {
	*memory.Store
}

func (l stalledLedger) ConfirmBallot(ctx context.Context, _ ports.BallotCommit) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSubmitBallotPersistenceTimeoutIsRetryable(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice"}}, "President")
	f.open(t)
	f.ballots.Ledger = stalledLedger{Store: f.store}
	f.ballots.PersistenceTimeout = 10 * time.Millisecond

	_, err := f.submit("voter-1", "President", "Alice")
	if !errors.Is(err, domainerrors.ErrPersistenceUnavailable) {
		t.Fatalf("expected persistence unavailable, got %v", err)
	}
	if errors.Is(err, domainerrors.ErrAlreadyVoted) || errors.Is(err, domainerrors.ErrIncompleteBallot) {
		t.Fatalf("transient failure must not look like a validation error: %v", err)
	}
	if f.metrics.count(BallotOutcomeUnavailable) != 1 {
		t.Fatalf("expected unavailable outcome recorded")
	}
}

func TestSubmitBallotEventCarriesNoVoterID(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{
		"President": {"Alice"},
		"Treasurer": {"Carol"},
	}, "President", "Treasurer")
	f.open(t)

	// submitted out of ballot order
	result, err := f.submit("voter-secret", "Treasurer", "Carol", "President", "Alice")
	if err != nil {
		t.Fatalf("submit ballot failed: %v", err)
	}

	ballot, found, _ := f.store.GetBallotByVoter(context.Background(), f.election.ElectionID, "voter-secret")
	if !found || ballot.BallotID != result.BallotID {
		t.Fatalf("expected stored ballot %s", result.BallotID)
	}
	if ballot.Selections[0].PositionID != f.positions["President"].PositionID {
		t.Fatalf("expected selections stored in ballot order, got %+v", ballot.Selections)
	}

	pending, _ := f.store.ListPendingOutbox(context.Background(), 100)
	var seen bool
	for _, row := range pending {
		if row.EventType != EventBallotConfirmed {
			continue
		}
		seen = true
		if strings.Contains(string(row.Payload), "voter-secret") {
			t.Fatalf("ballot event leaked voter id: %s", row.Payload)
		}
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			t.Fatalf("decode outbox envelope failed: %v", err)
		}
		if envelope.PartitionKey != f.election.ElectionID {
			t.Fatalf("expected partition by election, got %s", envelope.PartitionKey)
		}
	}
	if !seen {
		t.Fatalf("expected ballot.confirmed outbox row")
	}
}

func TestRebuildVoteCountsRestoresLedgerCounts(t *testing.T) {
	f := newElectionFixture(t, 0, map[string][]string{"President": {"Alice", "Bob"}}, "President")
	f.open(t)
	for i, pick := range []string{"Alice", "Bob", "Alice"} {
		if _, err := f.submit(fmt.Sprintf("voter-%d", i), "President", pick); err != nil {
			t.Fatalf("submit ballot failed: %v", err)
		}
	}
	// drift the cache
	_ = f.store.RebuildVoteCounts(context.Background(), f.election.ElectionID, map[string]int{}, f.clock.Now())

	result, err := f.ballots.RebuildVoteCounts(context.Background(), RebuildVoteCountsCommand{
		ElectionID: f.election.ElectionID,
		ActorID:    "organizer-1",
	})
	if err != nil {
		t.Fatalf("rebuild vote counts failed: %v", err)
	}
	if result.BallotsCounted != 3 || result.Counts[f.cands["Alice"].CandidateID] != 2 {
		t.Fatalf("unexpected rebuild result %+v", result)
	}
	bob, _ := f.store.GetCandidate(context.Background(), f.cands["Bob"].CandidateID)
	if bob.VoteCount != 1 {
		t.Fatalf("expected bob restored to 1, got %d", bob.VoteCount)
	}
}
