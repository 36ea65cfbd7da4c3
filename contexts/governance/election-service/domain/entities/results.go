package entities

import "time"

type CandidateResult struct {
	CandidateID string
	DisplayName string
	Votes       int
	Percentage  float64
	Rank        int
	Tied        bool
	Winner      bool
}

// VoidedResult reports votes cast for a candidate who is no longer approved.
// Those votes are kept on the ledger but never ranked or redistributed.
type VoidedResult struct {
	CandidateID string
	DisplayName string
	Status      CandidateStatus
	Votes       int
}

type PositionResult struct {
	PositionID      string
	Name            string
	MaxWinners      int
	ValidVotes      int
	VoidedVotes     int
	TotalSelections int
	Candidates      []CandidateResult
	Voided          []VoidedResult
}

type ElectionResults struct {
	ElectionID          string
	Status              ElectionStatus
	Provisional         bool
	BallotsCounted      int
	TotalEligibleVoters int
	Turnout             float64
	Positions           []PositionResult
	ComputedAt          time.Time
}
