package queries_test

import (
	"context"
	"errors"
	"testing"
	"time"

	electionservice "guildhall/contexts/governance/election-service"
	"guildhall/contexts/governance/election-service/application/commands"
	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
)

type openElection struct {
	module     electionservice.Module
	election   entities.Election
	positions  map[string]string
	candidates map[string]string
}

// newOpenElection builds a President race with Alice and Bob and opens voting.
func newOpenElection(t *testing.T) *openElection {
	t.Helper()
	ctx := context.Background()
	module := electionservice.NewInMemoryModule(nil)
	now := time.Now().UTC()
	election, err := module.Registry.CreateElection(ctx, commands.CreateElectionCommand{
		ActorID:             "organizer-1",
		Title:               "Board election",
		StartsAt:            now.Add(time.Hour),
		EndsAt:              now.Add(24 * time.Hour),
		TotalEligibleVoters: 4,
	})
	if err != nil {
		t.Fatalf("create election failed: %v", err)
	}
	position, err := module.Registry.AddPosition(ctx, commands.AddPositionCommand{
		ElectionID: election.ElectionID,
		ActorID:    "organizer-1",
		Name:       "President",
	})
	if err != nil {
		t.Fatalf("add position failed: %v", err)
	}
	fx := &openElection{
		module:     module,
		positions:  map[string]string{"President": position.PositionID},
		candidates: map[string]string{},
	}
	for _, name := range []string{"Alice", "Bob"} {
		candidate, err := module.Registry.AddCandidate(ctx, commands.AddCandidateCommand{
			ElectionID:  election.ElectionID,
			PositionID:  position.PositionID,
			ActorID:     "organizer-1",
			DisplayName: name,
			Status:      entities.CandidateStatusApproved,
		})
		if err != nil {
			t.Fatalf("add candidate %s failed: %v", name, err)
		}
		fx.candidates[name] = candidate.CandidateID
	}
	fx.election = election
	fx.move(t, entities.ElectionStatusUpcoming)
	fx.move(t, entities.ElectionStatusOngoing)
	module.Store.OpenRoll(election.ElectionID)
	return fx
}

func (fx *openElection) move(t *testing.T, to entities.ElectionStatus) {
	t.Helper()
	election, err := fx.module.Registry.TransitionElection(context.Background(), commands.TransitionElectionCommand{
		ElectionID: fx.election.ElectionID,
		ToStatus:   to,
		Manual:     true,
		ActorID:    "organizer-1",
	})
	if err != nil {
		t.Fatalf("transition to %s failed: %v", to, err)
	}
	fx.election = election
}

func (fx *openElection) vote(t *testing.T, voterID string, candidate string) {
	t.Helper()
	_, err := fx.module.Ballots.SubmitBallot(context.Background(), commands.SubmitBallotCommand{
		ElectionID: fx.election.ElectionID,
		VoterID:    voterID,
		Selections: []entities.Selection{{
			PositionID:  fx.positions["President"],
			CandidateID: fx.candidates[candidate],
		}},
	})
	if err != nil {
		t.Fatalf("submit ballot for %s failed: %v", voterID, err)
	}
}

func TestComputeResultsSingleBallot(t *testing.T) {
	fx := newOpenElection(t)
	fx.vote(t, "voter-1", "Alice")

	results, err := fx.module.Results.ComputeResults(context.Background(), fx.election.ElectionID)
	if err != nil {
		t.Fatalf("compute results failed: %v", err)
	}
	if !results.Provisional || results.BallotsCounted != 1 {
		t.Fatalf("expected one provisional ballot, got %+v", results)
	}
	if results.Turnout != 0.25 {
		t.Fatalf("expected a quarter turnout, got %v", results.Turnout)
	}
	president := results.Positions[0]
	if president.Candidates[0].DisplayName != "Alice" || president.Candidates[0].Votes != 1 || president.Candidates[0].Percentage != 100 {
		t.Fatalf("unexpected leader %+v", president.Candidates[0])
	}
	if president.Candidates[1].DisplayName != "Bob" || president.Candidates[1].Votes != 0 || president.Candidates[1].Percentage != 0 {
		t.Fatalf("unexpected runner-up %+v", president.Candidates[1])
	}
}

func TestComputeResultsSeesNewBallots(t *testing.T) {
	fx := newOpenElection(t)
	ctx := context.Background()
	fx.vote(t, "voter-1", "Alice")

	first, err := fx.module.Results.ComputeResults(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("compute results failed: %v", err)
	}
	again, _ := fx.module.Results.ComputeResults(ctx, fx.election.ElectionID)
	if again.BallotsCounted != first.BallotsCounted {
		t.Fatalf("expected repeated read to match, got %d and %d", first.BallotsCounted, again.BallotsCounted)
	}

	fx.vote(t, "voter-2", "Bob")
	fx.vote(t, "voter-3", "Bob")
	latest, err := fx.module.Results.ComputeResults(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("compute results failed: %v", err)
	}
	if latest.BallotsCounted != 3 || latest.Positions[0].Candidates[0].DisplayName != "Bob" {
		t.Fatalf("expected Bob leading on 3 ballots, got %+v", latest)
	}
}

func TestComputeResultsCancelled(t *testing.T) {
	fx := newOpenElection(t)
	fx.vote(t, "voter-1", "Alice")
	fx.move(t, entities.ElectionStatusCancelled)

	_, err := fx.module.Results.ComputeResults(context.Background(), fx.election.ElectionID)
	if !errors.Is(err, domainerrors.ErrElectionCancelled) {
		t.Fatalf("expected cancelled election error, got %v", err)
	}
	_, err = fx.module.Elections.BallotForm(context.Background(), fx.election.ElectionID)
	if !errors.Is(err, domainerrors.ErrElectionCancelled) {
		t.Fatalf("expected cancelled ballot form error, got %v", err)
	}
}

func TestFinalizeResultsNeedsEndedElection(t *testing.T) {
	fx := newOpenElection(t)
	ctx := context.Background()
	fx.vote(t, "voter-1", "Alice")

	_, err := fx.module.Results.FinalizeResults(ctx, fx.election.ElectionID)
	var detail *domainerrors.InvalidTransitionError
	if !errors.As(err, &detail) || detail.From != "ongoing" {
		t.Fatalf("expected finalize rejection from ongoing, got %v", err)
	}

	fx.move(t, entities.ElectionStatusEnded)
	final, err := fx.module.Results.FinalizeResults(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("finalize results failed: %v", err)
	}
	if final.Provisional {
		t.Fatalf("expected final results")
	}
	snapshot, found, err := fx.module.Store.GetResultSnapshot(ctx, fx.election.ElectionID)
	if err != nil || !found {
		t.Fatalf("expected stored snapshot, found=%v err=%v", found, err)
	}
	read, err := fx.module.Results.ComputeResults(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("compute results failed: %v", err)
	}
	if !read.ComputedAt.Equal(snapshot.Results.ComputedAt) || read.BallotsCounted != 1 {
		t.Fatalf("expected ended election served from snapshot, got %+v", read)
	}
}

func TestListElectionsFiltersByStatus(t *testing.T) {
	fx := newOpenElection(t)
	ctx := context.Background()

	ongoing, err := fx.module.Elections.ListElections(ctx, "Ongoing")
	if err != nil {
		t.Fatalf("list elections failed: %v", err)
	}
	if len(ongoing) != 1 || ongoing[0].ElectionID != fx.election.ElectionID {
		t.Fatalf("expected the open election, got %+v", ongoing)
	}
	drafts, _ := fx.module.Elections.ListElections(ctx, "draft")
	if len(drafts) != 0 {
		t.Fatalf("expected no drafts, got %d", len(drafts))
	}
	if _, err := fx.module.Elections.ListElections(ctx, "archived"); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid status filter, got %v", err)
	}
}

func TestBallotFormHidesUnapprovedCandidates(t *testing.T) {
	fx := newOpenElection(t)
	ctx := context.Background()

	if _, err := fx.module.Registry.ChangeCandidateStatus(ctx, commands.ChangeCandidateStatusCommand{
		ElectionID:  fx.election.ElectionID,
		CandidateID: fx.candidates["Bob"],
		ActorID:     "organizer-1",
		Status:      entities.CandidateStatusWithdrew,
	}); err != nil {
		t.Fatalf("withdraw candidate failed: %v", err)
	}

	form, err := fx.module.Elections.BallotForm(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("ballot form failed: %v", err)
	}
	if len(form.Positions) != 1 || len(form.Positions[0].Candidates) != 1 {
		t.Fatalf("expected one position with one candidate, got %+v", form.Positions)
	}
	if form.Positions[0].Candidates[0].DisplayName != "Alice" {
		t.Fatalf("expected Alice on the form, got %s", form.Positions[0].Candidates[0].DisplayName)
	}

	view, err := fx.module.Elections.GetElection(ctx, fx.election.ElectionID)
	if err != nil {
		t.Fatalf("get election failed: %v", err)
	}
	if len(view.Candidates) != 2 {
		t.Fatalf("expected organizer view to keep both candidates, got %d", len(view.Candidates))
	}
}

func TestVoterStatus(t *testing.T) {
	fx := newOpenElection(t)
	ctx := context.Background()

	status, err := fx.module.Elections.VoterStatus(ctx, fx.election.ElectionID, "voter-1")
	if err != nil {
		t.Fatalf("voter status failed: %v", err)
	}
	if status.HasVoted {
		t.Fatalf("expected voter not to have voted yet")
	}

	fx.vote(t, "voter-1", "Alice")
	status, err = fx.module.Elections.VoterStatus(ctx, fx.election.ElectionID, "voter-1")
	if err != nil {
		t.Fatalf("voter status failed: %v", err)
	}
	if !status.HasVoted || status.BallotID == "" || status.SubmittedAt.IsZero() {
		t.Fatalf("expected recorded ballot, got %+v", status)
	}

	if _, err := fx.module.Elections.VoterStatus(ctx, fx.election.ElectionID, " "); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank voter, got %v", err)
	}
	if _, err := fx.module.Elections.VoterStatus(ctx, "missing", "voter-1"); !errors.Is(err, domainerrors.ErrElectionNotFound) {
		t.Fatalf("expected election not found, got %v", err)
	}
}
