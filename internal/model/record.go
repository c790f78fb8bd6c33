package model

import "time"

// DateLayout is the calendar-day key format used throughout the tracker.
// Dates are computed in the user's local timezone, not UTC.
const DateLayout = "2006-01-02"

// DailyTaskRecord is the per-calendar-day completion state for one template.
// At most one record exists per (template, date); records are created lazily
// by the backfill step and removed only when their template is deleted.
type DailyTaskRecord struct {
	ID          uint   `gorm:"primaryKey"`
	TemplateID  uint   `gorm:"index;index:idx_record_template_date,unique"`
	Date        string `gorm:"index:idx_record_template_date,unique;index"` // YYYY-MM-DD
	IsCompleted bool   `gorm:"default:false"`
	CompletedAt *time.Time
	RemoteID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
