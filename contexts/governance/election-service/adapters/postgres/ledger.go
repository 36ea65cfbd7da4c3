package postgresadapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"

	"gorm.io/gorm"
)

// ConfirmBallot writes the ballot, its selections, both counters and the
// outbox events in one transaction. The ballot insert goes first so a
// concurrent duplicate hits the unique index and fails as ErrAlreadyVoted.
func (r *Repository) ConfirmBallot(ctx context.Context, commit ports.BallotCommit) error {
	ballot := commit.Ballot
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := ballotModel{
			ID:            ballot.BallotID,
			ElectionID:    ballot.ElectionID,
			VoterID:       ballot.VoterID,
			Status:        string(ballot.Status),
			Informational: ballot.Informational,
			SubmittedAt:   ballot.SubmittedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyVoted
			}
			return r.logError("election_repo_insert_ballot_failed", err, "election_id", ballot.ElectionID)
		}

		if len(ballot.Selections) > 0 {
			selections := make([]selectionModel, 0, len(ballot.Selections))
			for _, selection := range ballot.Selections {
				selections = append(selections, selectionModel{
					BallotID:    ballot.BallotID,
					PositionID:  selection.PositionID,
					ElectionID:  ballot.ElectionID,
					CandidateID: selection.CandidateID,
				})
			}
			if err := tx.Create(&selections).Error; err != nil {
				return r.logError("election_repo_insert_selections_failed", err,
					"election_id", ballot.ElectionID,
					"ballot_id", ballot.BallotID,
				)
			}
		}

		counter := tx.Model(&electionModel{}).
			Where("id = ? AND status = ?", ballot.ElectionID, string(entities.ElectionStatusOngoing)).
			Where("total_eligible_voters = 0 OR ballots_submitted < total_eligible_voters").
			UpdateColumn("ballots_submitted", gorm.Expr("ballots_submitted + 1"))
		if counter.Error != nil {
			return r.logError("election_repo_ballot_counter_failed", counter.Error, "election_id", ballot.ElectionID)
		}
		if counter.RowsAffected == 0 {
			return r.closedOrExhausted(ctx, tx, ballot.ElectionID)
		}

		// The status predicate re-checks approval under the row lock, so a
		// disqualification that commits first rolls the whole ballot back.
		for _, selection := range ballot.Selections {
			votes := tx.Model(&candidateModel{}).
				Where("id = ? AND election_id = ? AND position_id = ? AND status = ?",
					selection.CandidateID,
					ballot.ElectionID,
					selection.PositionID,
					string(entities.CandidateStatusApproved),
				).
				UpdateColumn("vote_count", gorm.Expr("vote_count + 1"))
			if votes.Error != nil {
				return r.logError("election_repo_vote_counter_failed", votes.Error,
					"election_id", ballot.ElectionID,
					"candidate_id", selection.CandidateID,
				)
			}
			if votes.RowsAffected == 0 {
				return &domainerrors.InvalidSelectionError{
					PositionID:  selection.PositionID,
					CandidateID: selection.CandidateID,
					Reason:      "candidate is not approved",
				}
			}
		}
		return r.appendOutbox(ctx, tx, commit.Events)
	})
}

func (r *Repository) GetBallotByVoter(ctx context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	var row ballotModel
	err := r.db.WithContext(ctx).
		Where("election_id = ? AND voter_id = ?", strings.TrimSpace(electionID), strings.TrimSpace(voterID)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ballot{}, false, nil
		}
		return entities.Ballot{}, false, r.logError("election_repo_get_ballot_by_voter_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	var selections []selectionModel
	if err := r.db.WithContext(ctx).Where("ballot_id = ?", row.ID).Find(&selections).Error; err != nil {
		return entities.Ballot{}, false, r.logError("election_repo_get_ballot_selections_failed", err, "ballot_id", row.ID)
	}
	return toBallot(row, selections), true, nil
}

func (r *Repository) ListBallots(ctx context.Context, electionID string) ([]entities.Ballot, error) {
	electionID = strings.TrimSpace(electionID)
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_ballots_failed", err, "election_id", electionID)
	}
	var selections []selectionModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Find(&selections).Error; err != nil {
		return nil, r.logError("election_repo_list_selections_failed", err, "election_id", electionID)
	}
	byBallot := make(map[string][]selectionModel, len(rows))
	for _, selection := range selections {
		byBallot[selection.BallotID] = append(byBallot[selection.BallotID], selection)
	}
	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		items = append(items, toBallot(row, byBallot[row.ID]))
	}
	return items, nil
}

func (r *Repository) RebuildVoteCounts(ctx context.Context, electionID string, counts map[string]int, at time.Time) error {
	electionID = strings.TrimSpace(electionID)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidateIDs []string
		if err := tx.Model(&candidateModel{}).
			Where("election_id = ?", electionID).
			Pluck("id", &candidateIDs).Error; err != nil {
			return r.logError("election_repo_rebuild_list_candidates_failed", err, "election_id", electionID)
		}
		for _, candidateID := range candidateIDs {
			if err := tx.Model(&candidateModel{}).
				Where("id = ? AND vote_count <> ?", candidateID, counts[candidateID]).
				Updates(map[string]any{
					"vote_count": counts[candidateID],
					"updated_at": at.UTC(),
				}).Error; err != nil {
				return r.logError("election_repo_rebuild_vote_count_failed", err,
					"election_id", electionID,
					"candidate_id", candidateID,
				)
			}
		}
		return nil
	})
}

// closedOrExhausted explains why the conditional counter update matched no
// row: the election left ongoing, or every voter on the roll has voted.
func (r *Repository) closedOrExhausted(ctx context.Context, tx *gorm.DB, electionID string) error {
	var row electionModel
	if err := tx.WithContext(ctx).Select("id", "status").Where("id = ?", electionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainerrors.ErrElectionNotFound
		}
		return r.logError("election_repo_ballot_election_lookup_failed", err, "election_id", electionID)
	}
	if entities.ElectionStatus(row.Status) != entities.ElectionStatusOngoing {
		return domainerrors.ErrElectionNotOpen
	}
	return domainerrors.ErrNotEligible
}

func toBallot(row ballotModel, selections []selectionModel) entities.Ballot {
	items := make([]entities.Selection, 0, len(selections))
	for _, selection := range selections {
		items = append(items, entities.Selection{
			PositionID:  selection.PositionID,
			CandidateID: selection.CandidateID,
		})
	}
	return entities.Ballot{
		BallotID:      row.ID,
		ElectionID:    row.ElectionID,
		VoterID:       row.VoterID,
		Selections:    items,
		Status:        entities.BallotStatus(row.Status),
		Informational: row.Informational,
		SubmittedAt:   row.SubmittedAt.UTC(),
	}
}
