package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"healthforge/internal/model"
)

func TestReminderDue(t *testing.T) {
	// 08:00 UTC is 10:00 in Helsinki (EET, +02:00 in March).
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	utcUser := &model.User{Timezone: "UTC", ReminderAt: "08:00"}
	assert.True(t, reminderDue(utcUser, now, "09:00"))

	helsinkiUser := &model.User{Timezone: "Europe/Helsinki", ReminderAt: "10:00"}
	assert.True(t, reminderDue(helsinkiUser, now, "09:00"), "reminder time is local to the user")

	notYet := &model.User{Timezone: "Europe/Helsinki", ReminderAt: "08:00"}
	assert.False(t, reminderDue(notYet, now, "09:00"))

	// No reminder set: the server default applies in the user's timezone.
	defaulted := &model.User{Timezone: "UTC"}
	assert.True(t, reminderDue(defaulted, now, "08:00"))
	assert.False(t, reminderDue(defaulted, now, "08:01"))
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "Take Metformin", shortTitle("Take Metformin", 20))
	assert.Equal(t, "Take Metformin and …", shortTitle("Take Metformin and check glucose", 20))
}
