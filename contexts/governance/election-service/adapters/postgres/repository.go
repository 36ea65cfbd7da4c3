package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Repository implements the election-service ports on gorm. It runs against
// Postgres in production and SQLite for single-node installs; every mutating
// call is one transaction guarded by a conditional update.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates or updates the election-service tables.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return r.logError("election_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) CreateElection(ctx context.Context, election entities.Election) error {
	row := electionModelFromEntity(election)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("election_repo_create_election_failed", err, "election_id", row.ID)
	}
	return nil
}

func (r *Repository) UpdateElectionDetails(ctx context.Context, election entities.Election) error {
	result := r.db.WithContext(ctx).
		Model(&electionModel{}).
		Where("id = ? AND status = ?", strings.TrimSpace(election.ElectionID), string(entities.ElectionStatusDraft)).
		Updates(map[string]any{
			"title":                 election.Title,
			"description":           election.Description,
			"rules":                 election.Rules,
			"starts_at":             election.StartsAt.UTC(),
			"ends_at":               election.EndsAt.UTC(),
			"total_eligible_voters": election.TotalEligibleVoters,
			"updated_at":            election.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_update_election_failed", result.Error,
			"election_id", strings.TrimSpace(election.ElectionID),
		)
	}
	if result.RowsAffected == 0 {
		return r.missingOrConflict(ctx, r.db, election.ElectionID)
	}
	return nil
}

func (r *Repository) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	return r.getElection(ctx, r.db, electionID)
}

func (r *Repository) ListElections(ctx context.Context, status entities.ElectionStatus) ([]entities.Election, error) {
	tx := r.db.WithContext(ctx).Model(&electionModel{})
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	var rows []electionModel
	if err := tx.Order("starts_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_elections_failed", err, "status", string(status))
	}
	return r.withPositionIDs(ctx, rows)
}

func (r *Repository) ListElectionsDue(ctx context.Context, now time.Time) ([]entities.Election, error) {
	var rows []electionModel
	if err := r.db.WithContext(ctx).
		Where("(status = ? AND starts_at <= ?) OR (status = ? AND ends_at <= ?)",
			string(entities.ElectionStatusUpcoming), now.UTC(),
			string(entities.ElectionStatusOngoing), now.UTC(),
		).
		Order("starts_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_due_failed", err)
	}
	return r.withPositionIDs(ctx, rows)
}

func (r *Repository) AddPosition(ctx context.Context, position entities.Position) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.touchDraft(ctx, tx, position.ElectionID, position.CreatedAt); err != nil {
			return err
		}
		row := positionModel{
			ID:          position.PositionID,
			ElectionID:  position.ElectionID,
			Name:        position.Name,
			Description: position.Description,
			Ordering:    position.Ordering,
			MaxWinners:  position.MaxWinners,
			CreatedAt:   position.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return r.logError("election_repo_add_position_failed", err,
				"election_id", position.ElectionID,
				"position_id", position.PositionID,
			)
		}
		return nil
	})
}

func (r *Repository) ListPositions(ctx context.Context, electionID string) ([]entities.Position, error) {
	var rows []positionModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("ordering ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_positions_failed", err, "election_id", strings.TrimSpace(electionID))
	}
	items := make([]entities.Position, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AddCandidate(ctx context.Context, candidate entities.Candidate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.touchDraft(ctx, tx, candidate.ElectionID, candidate.CreatedAt); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&positionModel{}).
			Where("id = ? AND election_id = ?", candidate.PositionID, candidate.ElectionID).
			Count(&count).Error; err != nil {
			return r.logError("election_repo_add_candidate_position_lookup_failed", err,
				"position_id", candidate.PositionID,
			)
		}
		if count == 0 {
			return domainerrors.ErrPositionNotFound
		}
		row := candidateModelFromEntity(candidate)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return r.logError("election_repo_add_candidate_failed", err,
				"election_id", candidate.ElectionID,
				"candidate_id", candidate.CandidateID,
			)
		}
		return nil
	})
}

func (r *Repository) GetCandidate(ctx context.Context, candidateID string) (entities.Candidate, error) {
	var row candidateModel
	err := r.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(candidateID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Candidate{}, domainerrors.ErrCandidateNotFound
		}
		return entities.Candidate{}, r.logError("election_repo_get_candidate_failed", err,
			"candidate_id", strings.TrimSpace(candidateID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListCandidates(ctx context.Context, electionID string) ([]entities.Candidate, error) {
	var rows []candidateModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("position_id ASC, created_at ASC, ordinal ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_candidates_failed", err, "election_id", strings.TrimSpace(electionID))
	}
	items := make([]entities.Candidate, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// ChangeCandidateStatus locks the election row before the candidate row, the
// same order ConfirmBallot uses, so the two never deadlock.
func (r *Repository) ChangeCandidateStatus(ctx context.Context, change ports.CandidateStatusChange) (entities.Candidate, error) {
	var updated entities.Candidate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		election := tx.Model(&electionModel{}).
			Where("id = ? AND status = ?", change.ElectionID, string(change.ElectionStatus)).
			Update("updated_at", change.At.UTC())
		if election.Error != nil {
			return r.logError("election_repo_candidate_status_touch_failed", election.Error,
				"election_id", change.ElectionID,
			)
		}
		if election.RowsAffected == 0 {
			return r.missingOrConflict(ctx, tx, change.ElectionID)
		}

		candidate := tx.Model(&candidateModel{}).
			Where("id = ? AND election_id = ? AND status = ?", change.CandidateID, change.ElectionID, string(change.From)).
			Updates(map[string]any{
				"status":     string(change.To),
				"updated_at": change.At.UTC(),
			})
		if candidate.Error != nil {
			return r.logError("election_repo_candidate_status_update_failed", candidate.Error,
				"candidate_id", change.CandidateID,
			)
		}
		if candidate.RowsAffected == 0 {
			return domainerrors.ErrConflict
		}
		if err := r.appendOutbox(ctx, tx, change.Events); err != nil {
			return err
		}

		var row candidateModel
		if err := tx.Where("id = ?", change.CandidateID).First(&row).Error; err != nil {
			return r.logError("election_repo_candidate_status_reload_failed", err,
				"candidate_id", change.CandidateID,
			)
		}
		updated = row.toEntity()
		return nil
	})
	if err != nil {
		return entities.Candidate{}, err
	}
	return updated, nil
}

// TransitionElection is a compare-and-swap on the current status. A cancel
// also flags every ballot of the election informational in the same
// transaction.
func (r *Repository) TransitionElection(ctx context.Context, transition ports.ElectionTransition) (entities.Election, error) {
	var updated entities.Election
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&electionModel{}).
			Where("id = ? AND status = ?", transition.ElectionID, string(transition.From)).
			Updates(map[string]any{
				"status":     string(transition.To),
				"updated_at": transition.At.UTC(),
			})
		if result.Error != nil {
			return r.logError("election_repo_transition_failed", result.Error,
				"election_id", transition.ElectionID,
				"from", string(transition.From),
				"to", string(transition.To),
			)
		}
		if result.RowsAffected == 0 {
			return r.missingOrConflict(ctx, tx, transition.ElectionID)
		}

		if transition.To == entities.ElectionStatusCancelled {
			if err := tx.Model(&ballotModel{}).
				Where("election_id = ?", transition.ElectionID).
				Update("informational", true).Error; err != nil {
				return r.logError("election_repo_flag_ballots_failed", err,
					"election_id", transition.ElectionID,
				)
			}
		}
		if err := r.appendOutbox(ctx, tx, transition.Events); err != nil {
			return err
		}

		election, err := r.getElection(ctx, tx, transition.ElectionID)
		if err != nil {
			return err
		}
		updated = election
		return nil
	})
	if err != nil {
		return entities.Election{}, err
	}
	return updated, nil
}

func (r *Repository) getElection(ctx context.Context, db *gorm.DB, electionID string) (entities.Election, error) {
	var row electionModel
	err := db.WithContext(ctx).Where("id = ?", strings.TrimSpace(electionID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, domainerrors.ErrElectionNotFound
		}
		return entities.Election{}, r.logError("election_repo_get_election_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	var positionIDs []string
	if err := db.WithContext(ctx).
		Model(&positionModel{}).
		Where("election_id = ?", row.ID).
		Order("ordering ASC, id ASC").
		Pluck("id", &positionIDs).Error; err != nil {
		return entities.Election{}, r.logError("election_repo_get_position_ids_failed", err, "election_id", row.ID)
	}
	return row.toEntity(positionIDs), nil
}

func (r *Repository) withPositionIDs(ctx context.Context, rows []electionModel) ([]entities.Election, error) {
	if len(rows) == 0 {
		return []entities.Election{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var positions []positionModel
	if err := r.db.WithContext(ctx).
		Select("id", "election_id", "ordering").
		Where("election_id IN ?", ids).
		Order("ordering ASC, id ASC").
		Find(&positions).Error; err != nil {
		return nil, r.logError("election_repo_list_position_ids_failed", err)
	}
	byElection := make(map[string][]string, len(rows))
	for _, position := range positions {
		byElection[position.ElectionID] = append(byElection[position.ElectionID], position.ID)
	}
	items := make([]entities.Election, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(byElection[row.ID]))
	}
	return items, nil
}

// touchDraft bumps updated_at only while the election is still a draft, which
// also serializes concurrent ballot-shape edits on the election row.
func (r *Repository) touchDraft(ctx context.Context, tx *gorm.DB, electionID string, at time.Time) error {
	result := tx.Model(&electionModel{}).
		Where("id = ? AND status = ?", strings.TrimSpace(electionID), string(entities.ElectionStatusDraft)).
		Update("updated_at", at.UTC())
	if result.Error != nil {
		return r.logError("election_repo_touch_draft_failed", result.Error, "election_id", strings.TrimSpace(electionID))
	}
	if result.RowsAffected == 0 {
		return r.missingOrConflict(ctx, tx, electionID)
	}
	return nil
}

func (r *Repository) missingOrConflict(ctx context.Context, db *gorm.DB, electionID string) error {
	var count int64
	if err := db.WithContext(ctx).
		Model(&electionModel{}).
		Where("id = ?", strings.TrimSpace(electionID)).
		Count(&count).Error; err != nil {
		return r.logError("election_repo_election_lookup_failed", err, "election_id", strings.TrimSpace(electionID))
	}
	if count == 0 {
		return domainerrors.ErrElectionNotFound
	}
	return domainerrors.ErrConflict
}

// logError records an infrastructure failure and returns it as the
// retryable unavailable error.
func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/election-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("election repository operation failed", fields...)
	return domainerrors.Unavailable(err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

var _ ports.ElectionRepository = (*Repository)(nil)
var _ ports.BallotLedger = (*Repository)(nil)
var _ ports.ResultSnapshotStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
