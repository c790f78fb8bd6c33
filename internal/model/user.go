package model

import "time"

// User stores a patient's Telegram identity and reminder preferences.
type User struct {
	ID           uint  `gorm:"primaryKey"`
	TelegramID   int64 `gorm:"uniqueIndex"`
	FirstName    string
	LastName     string
	Username     string
	Timezone     string // IANA name, e.g. "Europe/Berlin"
	ReminderAt   string // "HH:MM" local time for the daily summary
	GuardianCode string `gorm:"uniqueIndex"` // invite code guardians redeem via /watch
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GuardianLink connects a patient to a guardian chat that receives the
// patient's daily summaries and completion alerts.
type GuardianLink struct {
	ID               uint  `gorm:"primaryKey"`
	UserID           uint  `gorm:"index;index:idx_guardian_user_chat,unique"`
	GuardianChatID   int64 `gorm:"index:idx_guardian_user_chat,unique"`
	GuardianUsername string
	CreatedAt        time.Time
}
