package postgresadapter

import (
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
)

type electionModel struct {
	ID                  string    `gorm:"column:id;primaryKey"`
	Title               string    `gorm:"column:title;not null"`
	Description         string    `gorm:"column:description"`
	Rules               string    `gorm:"column:rules"`
	StartsAt            time.Time `gorm:"column:starts_at;not null"`
	EndsAt              time.Time `gorm:"column:ends_at;not null"`
	Status              string    `gorm:"column:status;not null;index"`
	TotalEligibleVoters int       `gorm:"column:total_eligible_voters;not null;default:0"`
	BallotsSubmitted    int       `gorm:"column:ballots_submitted;not null;default:0"`
	CreatedBy           string    `gorm:"column:created_by"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (electionModel) TableName() string {
	return "elections"
}

func electionModelFromEntity(election entities.Election) electionModel {
	return electionModel{
		ID:                  election.ElectionID,
		Title:               election.Title,
		Description:         election.Description,
		Rules:               election.Rules,
		StartsAt:            election.StartsAt.UTC(),
		EndsAt:              election.EndsAt.UTC(),
		Status:              string(election.Status),
		TotalEligibleVoters: election.TotalEligibleVoters,
		BallotsSubmitted:    election.BallotsSubmitted,
		CreatedBy:           election.CreatedBy,
		CreatedAt:           election.CreatedAt.UTC(),
		UpdatedAt:           election.UpdatedAt.UTC(),
	}
}

func (m electionModel) toEntity(positionIDs []string) entities.Election {
	if positionIDs == nil {
		positionIDs = []string{}
	}
	return entities.Election{
		ElectionID:          m.ID,
		Title:               m.Title,
		Description:         m.Description,
		Rules:               m.Rules,
		StartsAt:            m.StartsAt.UTC(),
		EndsAt:              m.EndsAt.UTC(),
		Status:              entities.ElectionStatus(m.Status),
		PositionIDs:         positionIDs,
		TotalEligibleVoters: m.TotalEligibleVoters,
		BallotsSubmitted:    m.BallotsSubmitted,
		CreatedBy:           m.CreatedBy,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

type positionModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ElectionID  string    `gorm:"column:election_id;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description"`
	Ordering    int       `gorm:"column:ordering;not null"`
	MaxWinners  int       `gorm:"column:max_winners;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (positionModel) TableName() string {
	return "election_positions"
}

func (m positionModel) toEntity() entities.Position {
	return entities.Position{
		PositionID:  m.ID,
		ElectionID:  m.ElectionID,
		Name:        m.Name,
		Description: m.Description,
		Ordering:    m.Ordering,
		MaxWinners:  m.MaxWinners,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type candidateModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ElectionID  string    `gorm:"column:election_id;not null;index"`
	PositionID  string    `gorm:"column:position_id;not null;index"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Manifesto   string    `gorm:"column:manifesto"`
	Status      string    `gorm:"column:status;not null"`
	VoteCount   int       `gorm:"column:vote_count;not null;default:0"`
	Ordinal     int       `gorm:"column:ordinal;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (candidateModel) TableName() string {
	return "election_candidates"
}

func candidateModelFromEntity(candidate entities.Candidate) candidateModel {
	return candidateModel{
		ID:          candidate.CandidateID,
		ElectionID:  candidate.ElectionID,
		PositionID:  candidate.PositionID,
		DisplayName: candidate.DisplayName,
		Manifesto:   candidate.Manifesto,
		Status:      string(candidate.Status),
		VoteCount:   candidate.VoteCount,
		Ordinal:     candidate.Ordinal,
		CreatedAt:   candidate.CreatedAt.UTC(),
		UpdatedAt:   candidate.UpdatedAt.UTC(),
	}
}

func (m candidateModel) toEntity() entities.Candidate {
	return entities.Candidate{
		CandidateID: m.ID,
		PositionID:  m.PositionID,
		ElectionID:  m.ElectionID,
		DisplayName: m.DisplayName,
		Manifesto:   m.Manifesto,
		Status:      entities.CandidateStatus(m.Status),
		VoteCount:   m.VoteCount,
		Ordinal:     m.Ordinal,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

// ballotModel carries the (election_id, voter_id) unique index that makes a
// second confirmed ballot for the same voter impossible at the storage level.
type ballotModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	ElectionID    string    `gorm:"column:election_id;not null;uniqueIndex:idx_election_ballots_voter,priority:1"`
	VoterID       string    `gorm:"column:voter_id;not null;uniqueIndex:idx_election_ballots_voter,priority:2"`
	Status        string    `gorm:"column:status;not null"`
	Informational bool      `gorm:"column:informational;not null;default:false"`
	SubmittedAt   time.Time `gorm:"column:submitted_at;not null"`
}

func (ballotModel) TableName() string {
	return "election_ballots"
}

type selectionModel struct {
	BallotID    string `gorm:"column:ballot_id;primaryKey"`
	PositionID  string `gorm:"column:position_id;primaryKey"`
	ElectionID  string `gorm:"column:election_id;not null;index"`
	CandidateID string `gorm:"column:candidate_id;not null"`
}

func (selectionModel) TableName() string {
	return "election_ballot_selections"
}

type snapshotModel struct {
	ElectionID string    `gorm:"column:election_id;primaryKey"`
	Version    string    `gorm:"column:version;not null"`
	Results    []byte    `gorm:"column:results;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (snapshotModel) TableName() string {
	return "election_result_snapshots"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "election_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "election_event_dedup"
}

func allModels() []any {
	return []any{
		&electionModel{},
		&positionModel{},
		&candidateModel{},
		&ballotModel{},
		&selectionModel{},
		&snapshotModel{},
		&outboxModel{},
		&eventDedupModel{},
	}
}
