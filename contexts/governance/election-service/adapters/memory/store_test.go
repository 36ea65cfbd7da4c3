package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"
)

func seedOngoing(t *testing.T, store *Store, roll int) (entities.Election, entities.Candidate) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	election := entities.Election{
		ElectionID:          "election-1",
		Title:               "Board",
		Status:              entities.ElectionStatusDraft,
		StartsAt:            now,
		EndsAt:              now.Add(time.Hour),
		TotalEligibleVoters: roll,
	}
	if err := store.CreateElection(ctx, election); err != nil {
		t.Fatalf("create election failed: %v", err)
	}
	if err := store.AddPosition(ctx, entities.Position{PositionID: "pos-1", ElectionID: "election-1", Name: "Chair", Ordering: 1}); err != nil {
		t.Fatalf("add position failed: %v", err)
	}
	candidate := entities.Candidate{
		CandidateID: "cand-1",
		PositionID:  "pos-1",
		ElectionID:  "election-1",
		DisplayName: "Alice",
		Status:      entities.CandidateStatusApproved,
		Ordinal:     1,
	}
	if err := store.AddCandidate(ctx, candidate); err != nil {
		t.Fatalf("add candidate failed: %v", err)
	}
	for _, step := range []struct{ from, to entities.ElectionStatus }{
		{entities.ElectionStatusDraft, entities.ElectionStatusUpcoming},
		{entities.ElectionStatusUpcoming, entities.ElectionStatusOngoing},
	} {
		if _, err := store.TransitionElection(ctx, ports.ElectionTransition{ElectionID: "election-1", From: step.from, To: step.to, At: now}); err != nil {
			t.Fatalf("transition %s -> %s failed: %v", step.from, step.to, err)
		}
	}
	election, _ = store.GetElection(ctx, "election-1")
	return election, candidate
}

func ballotFor(ballotID string, voterID string, candidate entities.Candidate) ports.BallotCommit {
	return ports.BallotCommit{Ballot: entities.Ballot{
		BallotID:    ballotID,
		ElectionID:  candidate.ElectionID,
		VoterID:     voterID,
		Selections:  []entities.Selection{{PositionID: candidate.PositionID, CandidateID: candidate.CandidateID}},
		Status:      entities.BallotStatusConfirmed,
		SubmittedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}}
}

func TestConfirmBallotRecordsOneBallotPerVoter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, candidate := seedOngoing(t, store, 0)

	if err := store.ConfirmBallot(ctx, ballotFor("b1", "voter-1", candidate)); err != nil {
		t.Fatalf("confirm ballot failed: %v", err)
	}
	if err := store.ConfirmBallot(ctx, ballotFor("b2", "voter-1", candidate)); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}

	election, _ := store.GetElection(ctx, "election-1")
	if election.BallotsSubmitted != 1 {
		t.Fatalf("expected one ballot counted, got %d", election.BallotsSubmitted)
	}
	stored, _ := store.GetCandidate(ctx, candidate.CandidateID)
	if stored.VoteCount != 1 {
		t.Fatalf("expected one vote for candidate, got %d", stored.VoteCount)
	}
	ballot, found, _ := store.GetBallotByVoter(ctx, "election-1", "voter-1")
	if !found || ballot.BallotID != "b1" {
		t.Fatalf("expected first ballot kept, got %+v", ballot)
	}
}

func TestConfirmBallotChecksElectionAtCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, candidate := seedOngoing(t, store, 0)

	if _, err := store.TransitionElection(ctx, ports.ElectionTransition{
		ElectionID: "election-1",
		From:       entities.ElectionStatusOngoing,
		To:         entities.ElectionStatusEnded,
	}); err != nil {
		t.Fatalf("close election failed: %v", err)
	}
	if err := store.ConfirmBallot(ctx, ballotFor("b1", "voter-1", candidate)); !errors.Is(err, domainerrors.ErrElectionNotOpen) {
		t.Fatalf("expected election not open, got %v", err)
	}
	ballots, _ := store.ListBallots(ctx, "election-1")
	if len(ballots) != 0 {
		t.Fatalf("expected no ballot written, got %d", len(ballots))
	}
}

func TestConfirmBallotStopsAtRollSize(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, candidate := seedOngoing(t, store, 1)

	if err := store.ConfirmBallot(ctx, ballotFor("b1", "voter-1", candidate)); err != nil {
		t.Fatalf("confirm ballot failed: %v", err)
	}
	if err := store.ConfirmBallot(ctx, ballotFor("b2", "voter-2", candidate)); !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected not eligible past roll size, got %v", err)
	}
}

func TestTransitionElectionComparesAndSwaps(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, candidate := seedOngoing(t, store, 0)
	if err := store.ConfirmBallot(ctx, ballotFor("b1", "voter-1", candidate)); err != nil {
		t.Fatalf("confirm ballot failed: %v", err)
	}

	_, err := store.TransitionElection(ctx, ports.ElectionTransition{
		ElectionID: "election-1",
		From:       entities.ElectionStatusUpcoming,
		To:         entities.ElectionStatusOngoing,
	})
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict for stale from state, got %v", err)
	}

	cancelled, err := store.TransitionElection(ctx, ports.ElectionTransition{
		ElectionID: "election-1",
		From:       entities.ElectionStatusOngoing,
		To:         entities.ElectionStatusCancelled,
	})
	if err != nil {
		t.Fatalf("cancel election failed: %v", err)
	}
	if cancelled.Status != entities.ElectionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	ballot, _, _ := store.GetBallotByVoter(ctx, "election-1", "voter-1")
	if !ballot.Informational {
		t.Fatalf("expected ballot flagged informational")
	}
}

func TestReserveEventDetectsReplayAndConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	replayed, err := store.ReserveEvent(ctx, "event-1", "hash-a", expires)
	if err != nil || replayed {
		t.Fatalf("expected first reservation, got %v %v", replayed, err)
	}
	replayed, err = store.ReserveEvent(ctx, "event-1", "hash-a", expires)
	if err != nil || !replayed {
		t.Fatalf("expected replay detected, got %v %v", replayed, err)
	}
	if _, err := store.ReserveEvent(ctx, "event-1", "hash-b", expires); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict for different payload, got %v", err)
	}
}

func TestConfirmBallotRechecksCandidateAtCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, candidate := seedOngoing(t, store, 0)

	if _, err := store.ChangeCandidateStatus(ctx, ports.CandidateStatusChange{
		CandidateID:    candidate.CandidateID,
		ElectionID:     "election-1",
		From:           entities.CandidateStatusApproved,
		To:             entities.CandidateStatusDisqualified,
		ElectionStatus: entities.ElectionStatusOngoing,
	}); err != nil {
		t.Fatalf("change candidate status failed: %v", err)
	}
	if err := store.ConfirmBallot(ctx, ballotFor("b1", "voter-1", candidate)); !errors.Is(err, domainerrors.ErrInvalidSelection) {
		t.Fatalf("expected invalid selection, got %v", err)
	}
	election, _ := store.GetElection(ctx, "election-1")
	stored, _ := store.GetCandidate(ctx, candidate.CandidateID)
	if election.BallotsSubmitted != 0 || stored.VoteCount != 0 {
		t.Fatalf("expected no writes, got ballots=%d votes=%d", election.BallotsSubmitted, stored.VoteCount)
	}
	if pending, _ := store.ListPendingOutbox(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
}

func TestReleaseEventAllowsRedelivery(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	if replayed, err := store.ReserveEvent(ctx, "evt-1", "hash", expires); err != nil || replayed {
		t.Fatalf("first reserve: replayed=%v err=%v", replayed, err)
	}
	if err := store.ReleaseEvent(ctx, "evt-1"); err != nil {
		t.Fatalf("release event failed: %v", err)
	}
	if replayed, err := store.ReserveEvent(ctx, "evt-1", "hash", expires); err != nil || replayed {
		t.Fatalf("expected fresh reservation after release, replayed=%v err=%v", replayed, err)
	}
}
