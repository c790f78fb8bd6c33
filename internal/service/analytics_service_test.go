package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"healthforge/internal/model"
)

func record(templateID uint, date string, completed bool) model.DailyTaskRecord {
	return model.DailyTaskRecord{TemplateID: templateID, Date: date, IsCompleted: completed}
}

func TestCompletionRate(t *testing.T) {
	assert.Zero(t, CompletionRate(nil), "no records means rate 0, not NaN")

	records := []model.DailyTaskRecord{
		record(1, "2026-03-08", true),
		record(1, "2026-03-09", false),
		record(1, "2026-03-10", true),
		record(1, "2026-03-11", true),
	}
	assert.InDelta(t, 0.75, CompletionRate(records), 1e-9)
}

func TestStreakCountsConsecutiveFullDays(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-07", true),
		record(1, "2026-03-08", true),
		record(1, "2026-03-09", true),
	}
	assert.Equal(t, 3, Streak(records, "2026-03-10"))
}

func TestStreakSkipsIncompleteToday(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-08", true),
		record(1, "2026-03-09", true),
		record(1, "2026-03-10", false),
	}
	assert.Equal(t, 2, Streak(records, "2026-03-10"), "an unfinished today must not break the run")
}

func TestStreakCountsCompleteToday(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-09", true),
		record(1, "2026-03-10", true),
	}
	assert.Equal(t, 2, Streak(records, "2026-03-10"))
}

func TestStreakBreaksOnPartialDay(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-07", true),
		record(1, "2026-03-08", true),
		record(2, "2026-03-08", false),
		record(1, "2026-03-09", true),
	}
	assert.Equal(t, 1, Streak(records, "2026-03-10"), "a partially-done past day ends the run")
}

func TestStreakBreaksOnGapDay(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-06", true),
		record(1, "2026-03-07", true),
		record(1, "2026-03-09", true),
	}
	assert.Equal(t, 1, Streak(records, "2026-03-10"), "a day with no records ends the run")
}

func TestStreakIgnoresFutureDates(t *testing.T) {
	records := []model.DailyTaskRecord{
		record(1, "2026-03-09", true),
		record(1, "2026-03-10", true),
		record(1, "2026-03-15", false),
	}
	assert.Equal(t, 2, Streak(records, "2026-03-10"))
}

func TestStreakEmpty(t *testing.T) {
	assert.Zero(t, Streak(nil, "2026-03-10"))
}
