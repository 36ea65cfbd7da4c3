package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the single-process implementation of every election-service port.
// One mutex guards all maps, so each mutating call is one atomic unit.
type Store struct {
	mu sync.RWMutex

	elections  map[string]entities.Election
	positions  map[string]entities.Position
	candidates map[string]entities.Candidate
	ballots    map[string]entities.Ballot
	voterIndex map[string]string
	snapshots  map[string]ports.ResultSnapshot
	outbox     map[string]outboxRecord
	eventDedup map[string]dedupRecord

	openRolls      map[string]bool
	rolls          map[string]map[string]struct{}
	eligibilityErr error
}

func NewStore() *Store {
	return &Store{
		elections:  make(map[string]entities.Election),
		positions:  make(map[string]entities.Position),
		candidates: make(map[string]entities.Candidate),
		ballots:    make(map[string]entities.Ballot),
		voterIndex: make(map[string]string),
		snapshots:  make(map[string]ports.ResultSnapshot),
		outbox:     make(map[string]outboxRecord),
		eventDedup: make(map[string]dedupRecord),
		openRolls:  make(map[string]bool),
		rolls:      make(map[string]map[string]struct{}),
	}
}

// OpenRoll makes every voter eligible for the election.
func (s *Store) OpenRoll(electionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openRolls[strings.TrimSpace(electionID)] = true
}

func (s *Store) GrantEligibility(electionID string, voterIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(electionID)
	roll := s.rolls[key]
	if roll == nil {
		roll = make(map[string]struct{}, len(voterIDs))
		s.rolls[key] = roll
	}
	for _, voterID := range voterIDs {
		roll[strings.TrimSpace(voterID)] = struct{}{}
	}
}

func (s *Store) RevokeEligibility(electionID string, voterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rolls[strings.TrimSpace(electionID)], strings.TrimSpace(voterID))
}

// SetEligibilityError makes IsEligible fail, simulating an unreachable
// membership service. Pass nil to restore normal answers.
func (s *Store) SetEligibilityError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligibilityErr = err
}

func (s *Store) IsEligible(_ context.Context, voterID string, electionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eligibilityErr != nil {
		return false, s.eligibilityErr
	}
	electionID = strings.TrimSpace(electionID)
	if s.openRolls[electionID] {
		return true, nil
	}
	_, ok := s.rolls[electionID][strings.TrimSpace(voterID)]
	return ok, nil
}

func (s *Store) CreateElection(_ context.Context, election entities.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(election.ElectionID)
	if _, exists := s.elections[key]; exists {
		return domainerrors.ErrConflict
	}
	s.elections[key] = cloneElection(election)
	return nil
}

func (s *Store) UpdateElectionDetails(_ context.Context, election entities.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.elections[strings.TrimSpace(election.ElectionID)]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if current.Status != entities.ElectionStatusDraft {
		return domainerrors.ErrConflict
	}
	current.Title = election.Title
	current.Description = election.Description
	current.Rules = election.Rules
	current.StartsAt = election.StartsAt
	current.EndsAt = election.EndsAt
	current.TotalEligibleVoters = election.TotalEligibleVoters
	current.UpdatedAt = election.UpdatedAt
	s.elections[current.ElectionID] = current
	return nil
}

func (s *Store) GetElection(_ context.Context, electionID string) (entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	election, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return cloneElection(election), nil
}

func (s *Store) ListElections(_ context.Context, status entities.ElectionStatus) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Election, 0, len(s.elections))
	for _, election := range s.elections {
		if status != "" && election.Status != status {
			continue
		}
		items = append(items, cloneElection(election))
	}
	sortElections(items)
	return items, nil
}

func (s *Store) ListElectionsDue(_ context.Context, now time.Time) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Election, 0)
	for _, election := range s.elections {
		switch {
		case election.Status == entities.ElectionStatusUpcoming && !now.Before(election.StartsAt):
		case election.Status == entities.ElectionStatusOngoing && !now.Before(election.EndsAt):
		default:
			continue
		}
		items = append(items, cloneElection(election))
	}
	sortElections(items)
	return items, nil
}

func (s *Store) AddPosition(_ context.Context, position entities.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	election, ok := s.elections[strings.TrimSpace(position.ElectionID)]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if election.Status != entities.ElectionStatusDraft {
		return domainerrors.ErrConflict
	}
	if _, exists := s.positions[position.PositionID]; exists {
		return domainerrors.ErrConflict
	}
	s.positions[position.PositionID] = position
	election.PositionIDs = append(append([]string(nil), election.PositionIDs...), position.PositionID)
	election.UpdatedAt = position.CreatedAt
	s.elections[election.ElectionID] = election
	return nil
}

func (s *Store) ListPositions(_ context.Context, electionID string) ([]entities.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	electionID = strings.TrimSpace(electionID)
	items := make([]entities.Position, 0)
	for _, position := range s.positions {
		if position.ElectionID == electionID {
			items = append(items, position)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Ordering == items[j].Ordering {
			return items[i].PositionID < items[j].PositionID
		}
		return items[i].Ordering < items[j].Ordering
	})
	return items, nil
}

func (s *Store) AddCandidate(_ context.Context, candidate entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	election, ok := s.elections[strings.TrimSpace(candidate.ElectionID)]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if election.Status != entities.ElectionStatusDraft {
		return domainerrors.ErrConflict
	}
	position, ok := s.positions[candidate.PositionID]
	if !ok || position.ElectionID != election.ElectionID {
		return domainerrors.ErrPositionNotFound
	}
	if _, exists := s.candidates[candidate.CandidateID]; exists {
		return domainerrors.ErrConflict
	}
	s.candidates[candidate.CandidateID] = candidate
	election.UpdatedAt = candidate.CreatedAt
	s.elections[election.ElectionID] = election
	return nil
}

func (s *Store) GetCandidate(_ context.Context, candidateID string) (entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidate, ok := s.candidates[strings.TrimSpace(candidateID)]
	if !ok {
		return entities.Candidate{}, domainerrors.ErrCandidateNotFound
	}
	return candidate, nil
}

func (s *Store) ListCandidates(_ context.Context, electionID string) ([]entities.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	electionID = strings.TrimSpace(electionID)
	items := make([]entities.Candidate, 0)
	for _, candidate := range s.candidates {
		if candidate.ElectionID == electionID {
			items = append(items, candidate)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PositionID != items[j].PositionID {
			return items[i].PositionID < items[j].PositionID
		}
		return items[i].RegisteredBefore(items[j])
	})
	return items, nil
}

func (s *Store) ChangeCandidateStatus(_ context.Context, change ports.CandidateStatusChange) (entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate, ok := s.candidates[strings.TrimSpace(change.CandidateID)]
	if !ok {
		return entities.Candidate{}, domainerrors.ErrCandidateNotFound
	}
	election, ok := s.elections[candidate.ElectionID]
	if !ok {
		return entities.Candidate{}, domainerrors.ErrElectionNotFound
	}
	if candidate.Status != change.From || election.Status != change.ElectionStatus {
		return entities.Candidate{}, domainerrors.ErrConflict
	}
	if err := s.appendOutboxLocked(change.Events); err != nil {
		return entities.Candidate{}, err
	}
	candidate.Status = change.To
	candidate.UpdatedAt = change.At
	s.candidates[candidate.CandidateID] = candidate
	election.UpdatedAt = change.At
	s.elections[election.ElectionID] = election
	return candidate, nil
}

func (s *Store) TransitionElection(_ context.Context, transition ports.ElectionTransition) (entities.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	election, ok := s.elections[strings.TrimSpace(transition.ElectionID)]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	if election.Status != transition.From {
		return entities.Election{}, domainerrors.ErrConflict
	}
	if err := s.appendOutboxLocked(transition.Events); err != nil {
		return entities.Election{}, err
	}
	election.Status = transition.To
	election.UpdatedAt = transition.At
	s.elections[election.ElectionID] = election

	if transition.To == entities.ElectionStatusCancelled {
		for id, ballot := range s.ballots {
			if ballot.ElectionID == election.ElectionID {
				ballot.Informational = true
				s.ballots[id] = ballot
			}
		}
	}
	return cloneElection(election), nil
}

// ConfirmBallot re-checks the election is still open and the voter has not
// voted while holding the write lock, then applies every write of the commit.
func (s *Store) ConfirmBallot(_ context.Context, commit ports.BallotCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ballot := commit.Ballot
	election, ok := s.elections[strings.TrimSpace(ballot.ElectionID)]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if election.Status != entities.ElectionStatusOngoing {
		return domainerrors.ErrElectionNotOpen
	}
	key := voterKey(ballot.ElectionID, ballot.VoterID)
	if _, voted := s.voterIndex[key]; voted {
		return domainerrors.ErrAlreadyVoted
	}
	if election.TotalEligibleVoters > 0 && election.BallotsSubmitted >= election.TotalEligibleVoters {
		return domainerrors.ErrNotEligible
	}
	if _, exists := s.ballots[ballot.BallotID]; exists {
		return domainerrors.ErrConflict
	}
	// Candidate status can change between validation and commit.
	for _, selection := range ballot.Selections {
		candidate, ok := s.candidates[selection.CandidateID]
		if !ok || candidate.ElectionID != election.ElectionID ||
			candidate.PositionID != selection.PositionID || !candidate.Approved() {
			return &domainerrors.InvalidSelectionError{
				PositionID:   selection.PositionID,
				PositionName: s.positions[selection.PositionID].Name,
				CandidateID:  selection.CandidateID,
				Reason:       "candidate is not approved",
			}
		}
	}
	if err := s.appendOutboxLocked(commit.Events); err != nil {
		return err
	}

	ballot.Selections = append([]entities.Selection(nil), ballot.Selections...)
	s.ballots[ballot.BallotID] = ballot
	s.voterIndex[key] = ballot.BallotID
	election.BallotsSubmitted++
	s.elections[election.ElectionID] = election
	for _, selection := range ballot.Selections {
		if candidate, ok := s.candidates[selection.CandidateID]; ok {
			candidate.VoteCount++
			s.candidates[candidate.CandidateID] = candidate
		}
	}
	return nil
}

func (s *Store) GetBallotByVoter(_ context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ballotID, ok := s.voterIndex[voterKey(electionID, voterID)]
	if !ok {
		return entities.Ballot{}, false, nil
	}
	return cloneBallot(s.ballots[ballotID]), true, nil
}

func (s *Store) ListBallots(_ context.Context, electionID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	electionID = strings.TrimSpace(electionID)
	items := make([]entities.Ballot, 0)
	for _, ballot := range s.ballots {
		if ballot.ElectionID == electionID {
			items = append(items, cloneBallot(ballot))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SubmittedAt.Equal(items[j].SubmittedAt) {
			return items[i].BallotID < items[j].BallotID
		}
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
	return items, nil
}

func (s *Store) RebuildVoteCounts(_ context.Context, electionID string, counts map[string]int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	electionID = strings.TrimSpace(electionID)
	for id, candidate := range s.candidates {
		if candidate.ElectionID != electionID {
			continue
		}
		if candidate.VoteCount != counts[id] {
			candidate.VoteCount = counts[id]
			candidate.UpdatedAt = at
			s.candidates[id] = candidate
		}
	}
	return nil
}

func (s *Store) SaveResultSnapshot(_ context.Context, snapshot ports.ResultSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[strings.TrimSpace(snapshot.ElectionID)] = snapshot
	return nil
}

func (s *Store) GetResultSnapshot(_ context.Context, electionID string) (ports.ResultSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[strings.TrimSpace(electionID)]
	return snapshot, ok, nil
}

func (s *Store) appendOutboxLocked(envelopes []ports.EventEnvelope) error {
	for _, envelope := range envelopes {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		outboxID := strings.TrimSpace(envelope.EventID)
		if outboxID == "" {
			outboxID = uuid.NewString()
		}
		if existing, ok := s.outbox[outboxID]; ok {
			if !bytes.Equal(existing.message.Payload, payload) {
				return domainerrors.ErrConflict
			}
			continue
		}
		createdAt := envelope.OccurredAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		s.outbox[outboxID] = outboxRecord{
			message: ports.OutboxMessage{
				OutboxID:     outboxID,
				EventType:    strings.TrimSpace(envelope.EventType),
				PartitionKey: strings.TrimSpace(envelope.PartitionKey),
				Payload:      payload,
				CreatedAt:    createdAt,
			},
		}
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	existing, ok := s.eventDedup[key]
	if ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}

	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.eventDedup, strings.TrimSpace(eventID))
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func voterKey(electionID string, voterID string) string {
	return strings.TrimSpace(electionID) + "\x00" + strings.TrimSpace(voterID)
}

func cloneElection(election entities.Election) entities.Election {
	election.PositionIDs = append([]string(nil), election.PositionIDs...)
	return election
}

func cloneBallot(ballot entities.Ballot) entities.Ballot {
	ballot.Selections = append([]entities.Selection(nil), ballot.Selections...)
	return ballot
}

func sortElections(items []entities.Election) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].StartsAt.Equal(items[j].StartsAt) {
			return items[i].ElectionID < items[j].ElectionID
		}
		return items[i].StartsAt.Before(items[j].StartsAt)
	})
}
