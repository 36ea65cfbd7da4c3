package entities

import "time"

type ElectionStatus string

const (
	ElectionStatusDraft     ElectionStatus = "draft"
	ElectionStatusUpcoming  ElectionStatus = "upcoming"
	ElectionStatusOngoing   ElectionStatus = "ongoing"
	ElectionStatusEnded     ElectionStatus = "ended"
	ElectionStatusCancelled ElectionStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s ElectionStatus) Terminal() bool {
	return s == ElectionStatusEnded || s == ElectionStatusCancelled
}

func (s ElectionStatus) Valid() bool {
	switch s {
	case ElectionStatusDraft,
		ElectionStatusUpcoming,
		ElectionStatusOngoing,
		ElectionStatusEnded,
		ElectionStatusCancelled:
		return true
	default:
		return false
	}
}

type Election struct {
	ElectionID          string
	Title               string
	Description         string
	StartsAt            time.Time
	EndsAt              time.Time
	Status              ElectionStatus
	PositionIDs         []string
	TotalEligibleVoters int
	BallotsSubmitted    int
	CreatedBy           string
	Rules               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Turnout is the ratio of submitted ballots to the eligible roll. An unknown
// roll (zero) yields zero rather than a division error.
func (e Election) Turnout(ballots int) float64 {
	if e.TotalEligibleVoters <= 0 || ballots <= 0 {
		return 0
	}
	return float64(ballots) / float64(e.TotalEligibleVoters)
}

type Position struct {
	PositionID  string
	ElectionID  string
	Name        string
	Description string
	Ordering    int
	MaxWinners  int
	CreatedAt   time.Time
}

type CandidateStatus string

const (
	CandidateStatusPending      CandidateStatus = "pending"
	CandidateStatusApproved     CandidateStatus = "approved"
	CandidateStatusDisqualified CandidateStatus = "disqualified"
	CandidateStatusWithdrew     CandidateStatus = "withdrew"
)

func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateStatusPending,
		CandidateStatusApproved,
		CandidateStatusDisqualified,
		CandidateStatusWithdrew:
		return true
	default:
		return false
	}
}

// Candidate carries a denormalized VoteCount that is only a cache over the
// ballot ledger. Tallies never read it.
type Candidate struct {
	CandidateID string
	PositionID  string
	ElectionID  string
	DisplayName string
	Manifesto   string
	Status      CandidateStatus
	VoteCount   int
	Ordinal     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Candidate) Approved() bool {
	return c.Status == CandidateStatusApproved
}

// RegisteredBefore orders candidates by registration: creation time first,
// then ordinal within the position, then identifier.
func (c Candidate) RegisteredBefore(other Candidate) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	if c.Ordinal != other.Ordinal {
		return c.Ordinal < other.Ordinal
	}
	return c.CandidateID < other.CandidateID
}
