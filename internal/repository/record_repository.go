package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthforge/internal/model"
)

// RecordRepository handles per-day completion records.
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// GetByTemplateAndDate returns the record for the pair, or nil when none
// has been materialized yet.
func (r *RecordRepository) GetByTemplateAndDate(ctx context.Context, templateID uint, date string) (*model.DailyTaskRecord, error) {
	var record model.DailyTaskRecord
	err := r.db.WithContext(ctx).Where("template_id = ? AND date = ?", templateID, date).First(&record).Error
	switch {
	case err == nil:
		return &record, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find record: %w", err)
	}
}

// ListByTemplate returns the template's full history, newest day first.
func (r *RecordRepository) ListByTemplate(ctx context.Context, templateID uint) ([]model.DailyTaskRecord, error) {
	var records []model.DailyTaskRecord
	if err := r.db.WithContext(ctx).Where("template_id = ?", templateID).
		Order("date DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListByDate returns all of a user's records for one calendar day.
func (r *RecordRepository) ListByDate(ctx context.Context, userID uint, date string) ([]model.DailyTaskRecord, error) {
	var records []model.DailyTaskRecord
	if err := r.db.WithContext(ctx).
		Joins("JOIN task_templates ON task_templates.id = daily_task_records.template_id").
		Where("task_templates.user_id = ? AND daily_task_records.date = ?", userID, date).
		Order("daily_task_records.template_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListByUser returns every record belonging to the user's templates.
func (r *RecordRepository) ListByUser(ctx context.Context, userID uint) ([]model.DailyTaskRecord, error) {
	var records []model.DailyTaskRecord
	if err := r.db.WithContext(ctx).
		Joins("JOIN task_templates ON task_templates.id = daily_task_records.template_id").
		Where("task_templates.user_id = ?", userID).
		Order("daily_task_records.date ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert inserts or replaces the record keyed by the (template, date)
// unique index.
func (r *RecordRepository) Upsert(ctx context.Context, record *model.DailyTaskRecord) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_completed", "completed_at", "updated_at"}),
	}).Create(record).Error; err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// BulkInsert creates the given records, silently skipping pairs that already
// exist. Backfill depends on this being idempotent.
func (r *RecordRepository) BulkInsert(ctx context.Context, records []model.DailyTaskRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&records).Error; err != nil {
		return fmt.Errorf("bulk insert records: %w", err)
	}
	return nil
}

// SetCompletion updates the completion flag and timestamp of one record.
func (r *RecordRepository) SetCompletion(ctx context.Context, recordID uint, completed bool, completedAt *time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.DailyTaskRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"is_completed": completed,
			"completed_at": completedAt,
		}).Error; err != nil {
		return fmt.Errorf("set completion: %w", err)
	}
	return nil
}

// ResetByDate clears completion for every record of the user on that day.
func (r *RecordRepository) ResetByDate(ctx context.Context, userID uint, date string) error {
	if err := r.db.WithContext(ctx).Model(&model.DailyTaskRecord{}).
		Where("date = ? AND template_id IN (?)",
			date,
			r.db.Model(&model.TaskTemplate{}).Select("id").Where("user_id = ?", userID),
		).
		Updates(map[string]interface{}{
			"is_completed": false,
			"completed_at": nil,
		}).Error; err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	return nil
}

// SetRemoteID writes back the mirror-assigned id after the first sync.
func (r *RecordRepository) SetRemoteID(ctx context.Context, recordID uint, remoteID string) error {
	if err := r.db.WithContext(ctx).Model(&model.DailyTaskRecord{}).
		Where("id = ?", recordID).
		Update("remote_id", remoteID).Error; err != nil {
		return fmt.Errorf("set record remote id: %w", err)
	}
	return nil
}

// GetByID returns the record or gorm.ErrRecordNotFound.
func (r *RecordRepository) GetByID(ctx context.Context, id uint) (*model.DailyTaskRecord, error) {
	var record model.DailyTaskRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
