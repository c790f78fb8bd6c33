package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"healthforge/internal/model"
)

// OutboxRepository stores pending remote-mirror mutations.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue records a pending mutation, due immediately.
func (r *OutboxRepository) Enqueue(ctx context.Context, kind model.OutboxKind, entityID uint, payload string) error {
	entry := model.OutboxEntry{
		Kind:          kind,
		EntityID:      entityID,
		DedupeKey:     uuid.NewString(),
		Payload:       payload,
		NextAttemptAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return nil
}

// Due returns entries whose next attempt time has passed, oldest first.
func (r *OutboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	q := r.db.WithContext(ctx).Where("next_attempt_at <= ?", now).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkDone removes a successfully pushed entry.
func (r *OutboxRepository) MarkDone(ctx context.Context, entryID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.OutboxEntry{}, entryID).Error; err != nil {
		return fmt.Errorf("remove outbox entry: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and reschedules the entry.
func (r *OutboxRepository) MarkFailed(ctx context.Context, entry *model.OutboxEntry, cause error, nextAttemptAt time.Time) error {
	updates := map[string]interface{}{
		"attempts":        entry.Attempts + 1,
		"next_attempt_at": nextAttemptAt,
		"last_error":      cause.Error(),
	}
	if err := r.db.WithContext(ctx).Model(entry).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	return nil
}

// PendingCount reports how many entries are waiting, for diagnostics.
func (r *OutboxRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.OutboxEntry{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
