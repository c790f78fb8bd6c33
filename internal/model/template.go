package model

import "time"

// TaskTemplate is a reusable definition of a recurring health task.
// One completion record is materialized per template per calendar day.
type TaskTemplate struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index"`
	Title       string
	Description string
	TimeOfDay   string    // display label, e.g. "8:00 AM"
	TimeBlock   TimeBlock `gorm:"index"`
	Category    Category  `gorm:"index"`
	Priority    Priority
	IsActive    bool    `gorm:"default:true;index"`
	RemoteID    *string // assigned by the mirror on first sync
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Records []DailyTaskRecord `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}
