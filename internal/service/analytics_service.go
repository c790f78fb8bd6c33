package service

import (
	"context"
	"time"

	"healthforge/internal/model"
	"healthforge/internal/repository"
)

// TemplateStats is the per-template read-side aggregate.
type TemplateStats struct {
	Template       model.TaskTemplate
	TotalDays      int
	CompletedDays  int
	CompletionRate float64
}

// UserStats aggregates a user's full history.
type UserStats struct {
	Templates []TemplateStats
	Streak    int
}

// AnalyticsService derives completion rates and streaks from records.
// Pure read side; it never mutates the store.
type AnalyticsService struct {
	templates *repository.TemplateRepository
	records   *repository.RecordRepository
	clock     Clock
}

func NewAnalyticsService(templates *repository.TemplateRepository, records *repository.RecordRepository, clock Clock) *AnalyticsService {
	return &AnalyticsService{templates: templates, records: records, clock: clock}
}

// Stats computes per-template completion rates and the overall streak for
// the user, as of today in the given location.
func (s *AnalyticsService) Stats(ctx context.Context, userID uint, loc *time.Location) (UserStats, error) {
	templates, err := s.templates.ListAll(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	records, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}

	byTemplate := make(map[uint][]model.DailyTaskRecord)
	for _, record := range records {
		byTemplate[record.TemplateID] = append(byTemplate[record.TemplateID], record)
	}

	stats := UserStats{Templates: make([]TemplateStats, 0, len(templates))}
	for _, template := range templates {
		stats.Templates = append(stats.Templates, templateStats(template, byTemplate[template.ID]))
	}
	stats.Streak = Streak(records, s.clock.Now().In(loc).Format(model.DateLayout))
	return stats, nil
}

func templateStats(template model.TaskTemplate, records []model.DailyTaskRecord) TemplateStats {
	out := TemplateStats{Template: template, TotalDays: len(records)}
	for _, record := range records {
		if record.IsCompleted {
			out.CompletedDays++
		}
	}
	out.CompletionRate = CompletionRate(records)
	return out
}

// CompletionRate is completed/total over the given records, 0 when empty.
func CompletionRate(records []model.DailyTaskRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	completed := 0
	for _, record := range records {
		if record.IsCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(records))
}

// Streak counts consecutive fully-completed calendar days walking backward
// from the most recent date not after today. A day counts when every one of
// its records is completed. The walk stops at the first incomplete day,
// except today itself: the day is still in progress, so an incomplete today
// is skipped rather than breaking the run. Future-dated records are ignored.
func Streak(records []model.DailyTaskRecord, today string) int {
	type dayState struct {
		total     int
		completed int
	}
	days := make(map[string]*dayState)
	for _, record := range records {
		if record.Date > today {
			continue
		}
		state, ok := days[record.Date]
		if !ok {
			state = &dayState{}
			days[record.Date] = state
		}
		state.total++
		if record.IsCompleted {
			state.completed++
		}
	}
	if len(days) == 0 {
		return 0
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	latest := dates[0]
	for _, date := range dates {
		if date > latest {
			latest = date
		}
	}

	streak := 0
	cursor, err := time.Parse(model.DateLayout, latest)
	if err != nil {
		return 0
	}
	for {
		date := cursor.Format(model.DateLayout)
		state, ok := days[date]
		if !ok {
			break
		}
		switch {
		case state.completed == state.total:
			streak++
		case date == today:
			// In progress; does not count, does not break.
		default:
			return streak
		}
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}
