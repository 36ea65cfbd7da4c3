package entities

import "time"

type BallotStatus string

const (
	BallotStatusPending   BallotStatus = "pending"
	BallotStatusConfirmed BallotStatus = "confirmed"
	BallotStatusRejected  BallotStatus = "rejected"
)

type Selection struct {
	PositionID  string
	CandidateID string
}

// Ballot is one voter's complete submission for an election. VoterID stays
// inside the ledger and is never copied into tallies or events.
type Ballot struct {
	BallotID      string
	ElectionID    string
	VoterID       string
	Selections    []Selection
	Status        BallotStatus
	Informational bool
	SubmittedAt   time.Time
}

// BallotForm is the shape a voter fills in: contested positions in election
// order with their approved candidates in registration order.
type BallotForm struct {
	ElectionID string
	Title      string
	Rules      string
	EndsAt     time.Time
	Positions  []BallotFormPosition
}

type BallotFormPosition struct {
	Position   Position
	Candidates []Candidate
}

type VoterStatus struct {
	ElectionID  string
	HasVoted    bool
	BallotID    string
	SubmittedAt time.Time
}
