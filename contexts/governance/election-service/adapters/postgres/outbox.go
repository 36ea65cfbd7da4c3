package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	"guildhall/contexts/governance/election-service/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

func (r *Repository) appendOutbox(ctx context.Context, tx *gorm.DB, envelopes []ports.EventEnvelope) error {
	for _, envelope := range envelopes {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return r.logError("election_repo_append_outbox_marshal_failed", err,
				"event_id", strings.TrimSpace(envelope.EventID),
				"event_type", strings.TrimSpace(envelope.EventType),
			)
		}
		row := outboxModel{
			OutboxID:     strings.TrimSpace(envelope.EventID),
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			Status:       outboxStatusPending,
			CreatedAt:    envelope.OccurredAt.UTC(),
		}
		if row.OutboxID == "" {
			row.OutboxID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		create := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).Create(&row)
		if create.Error != nil {
			return r.logError("election_repo_append_outbox_insert_failed", create.Error, "outbox_id", row.OutboxID)
		}
		if create.RowsAffected > 0 {
			continue
		}

		var existing outboxModel
		if err := tx.WithContext(ctx).
			Select("payload").
			Where("outbox_id = ?", row.OutboxID).
			First(&existing).Error; err != nil {
			return r.logError("election_repo_append_outbox_load_existing_failed", err, "outbox_id", row.OutboxID)
		}
		if !bytes.Equal(existing.Payload, row.Payload) {
			return domainerrors.ErrConflict
		}
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC, outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("election_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("election_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) ReleaseEvent(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&eventDedupModel{}).Error; err != nil {
		return r.logError("election_repo_release_event_failed", err, "event_id", eventID)
	}
	return nil
}

func (r *Repository) SaveResultSnapshot(ctx context.Context, snapshot ports.ResultSnapshot) error {
	payload, err := json.Marshal(snapshot.Results)
	if err != nil {
		return r.logError("election_repo_snapshot_marshal_failed", err, "election_id", snapshot.ElectionID)
	}
	row := snapshotModel{
		ElectionID: strings.TrimSpace(snapshot.ElectionID),
		Version:    snapshot.Version,
		Results:    payload,
		CreatedAt:  snapshot.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "election_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"version":    row.Version,
			"results":    row.Results,
			"created_at": row.CreatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return r.logError("election_repo_save_snapshot_failed", err, "election_id", row.ElectionID)
	}
	return nil
}

func (r *Repository) GetResultSnapshot(ctx context.Context, electionID string) (ports.ResultSnapshot, bool, error) {
	var row snapshotModel
	err := r.db.WithContext(ctx).Where("election_id = ?", strings.TrimSpace(electionID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ResultSnapshot{}, false, nil
		}
		return ports.ResultSnapshot{}, false, r.logError("election_repo_get_snapshot_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	var results entities.ElectionResults
	if err := json.Unmarshal(row.Results, &results); err != nil {
		return ports.ResultSnapshot{}, false, r.logError("election_repo_snapshot_decode_failed", err,
			"election_id", row.ElectionID,
		)
	}
	return ports.ResultSnapshot{
		ElectionID: row.ElectionID,
		Version:    row.Version,
		Results:    results,
		CreatedAt:  row.CreatedAt.UTC(),
	}, true, nil
}
