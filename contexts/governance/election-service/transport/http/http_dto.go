package http

import "time"

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Status    string    `json:"status"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

type PositionRefDTO struct {
	PositionID string `json:"position_id"`
	Name       string `json:"name,omitempty"`
}

type CreateElectionRequest struct {
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	Rules               string    `json:"rules,omitempty"`
	StartsAt            time.Time `json:"starts_at"`
	EndsAt              time.Time `json:"ends_at"`
	TotalEligibleVoters int       `json:"total_eligible_voters"`
}

type UpdateElectionRequest struct {
	Title               *string    `json:"title,omitempty"`
	Description         *string    `json:"description,omitempty"`
	Rules               *string    `json:"rules,omitempty"`
	StartsAt            *time.Time `json:"starts_at,omitempty"`
	EndsAt              *time.Time `json:"ends_at,omitempty"`
	TotalEligibleVoters *int       `json:"total_eligible_voters,omitempty"`
}

type AddPositionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MaxWinners  int    `json:"max_winners,omitempty"`
}

type AddCandidateRequest struct {
	DisplayName string `json:"display_name"`
	Manifesto   string `json:"manifesto,omitempty"`
	Status      string `json:"status,omitempty"`
}

type ChangeCandidateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type TransitionRequest struct {
	ToState string `json:"to_state"`
	Manual  bool   `json:"manual"`
}

type SelectionDTO struct {
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
}

type SubmitBallotRequest struct {
	Selections []SelectionDTO `json:"selections"`
}

type ElectionResponse struct {
	ElectionID          string    `json:"election_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	Rules               string    `json:"rules,omitempty"`
	StartsAt            time.Time `json:"starts_at"`
	EndsAt              time.Time `json:"ends_at"`
	Status              string    `json:"status"`
	PositionIDs         []string  `json:"position_ids"`
	TotalEligibleVoters int       `json:"total_eligible_voters"`
	BallotsSubmitted    int       `json:"ballots_submitted"`
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type ElectionDetailResponse struct {
	Election  ElectionResponse   `json:"election"`
	Positions []PositionResponse `json:"positions"`
}

type ListElectionsResponse struct {
	Items []ElectionResponse `json:"items"`
}

type PositionResponse struct {
	PositionID  string              `json:"position_id"`
	ElectionID  string              `json:"election_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Ordering    int                 `json:"ordering"`
	MaxWinners  int                 `json:"max_winners"`
	Candidates  []CandidateResponse `json:"candidates,omitempty"`
}

type CandidateResponse struct {
	CandidateID string `json:"candidate_id"`
	PositionID  string `json:"position_id"`
	ElectionID  string `json:"election_id"`
	DisplayName string `json:"display_name"`
	Manifesto   string `json:"manifesto,omitempty"`
	Status      string `json:"status"`
	VoteCount   int    `json:"vote_count"`
	Ordinal     int    `json:"ordinal"`
}

type BallotFormCandidate struct {
	CandidateID string `json:"candidate_id"`
	DisplayName string `json:"display_name"`
	Manifesto   string `json:"manifesto,omitempty"`
}

type BallotFormPosition struct {
	PositionID  string                `json:"position_id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	MaxWinners  int                   `json:"max_winners"`
	Candidates  []BallotFormCandidate `json:"candidates"`
}

type BallotFormResponse struct {
	ElectionID string               `json:"election_id"`
	Title      string               `json:"title"`
	Rules      string               `json:"rules,omitempty"`
	EndsAt     time.Time            `json:"ends_at"`
	Positions  []BallotFormPosition `json:"positions"`
}

type SubmitBallotResponse struct {
	BallotID    string    `json:"ballot_id"`
	ElectionID  string    `json:"election_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type VoterStatusResponse struct {
	ElectionID  string     `json:"election_id"`
	HasVoted    bool       `json:"has_voted"`
	BallotID    string     `json:"ballot_id,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type CandidateResultDTO struct {
	CandidateID string  `json:"candidate_id"`
	DisplayName string  `json:"display_name"`
	Votes       int     `json:"votes"`
	Percentage  float64 `json:"percentage"`
	Rank        int     `json:"rank"`
	Tied        bool    `json:"tied"`
	Winner      bool    `json:"winner"`
}

type VoidedResultDTO struct {
	CandidateID string `json:"candidate_id"`
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status,omitempty"`
	Votes       int    `json:"votes"`
}

type PositionResultDTO struct {
	PositionID      string               `json:"position_id"`
	Name            string               `json:"name"`
	MaxWinners      int                  `json:"max_winners"`
	ValidVotes      int                  `json:"valid_votes"`
	VoidedVotes     int                  `json:"voided_votes"`
	TotalSelections int                  `json:"total_selections"`
	Candidates      []CandidateResultDTO `json:"candidates"`
	Voided          []VoidedResultDTO    `json:"voided,omitempty"`
}

type ResultsResponse struct {
	ElectionID          string              `json:"election_id"`
	Status              string              `json:"status"`
	Provisional         bool                `json:"provisional"`
	BallotsCounted      int                 `json:"ballots_counted"`
	TotalEligibleVoters int                 `json:"total_eligible_voters"`
	Turnout             float64             `json:"turnout"`
	Positions           []PositionResultDTO `json:"positions"`
	ComputedAt          time.Time           `json:"computed_at"`
}

type RebuildVoteCountsResponse struct {
	ElectionID     string         `json:"election_id"`
	BallotsCounted int            `json:"ballots_counted"`
	Counts         map[string]int `json:"counts"`
}
