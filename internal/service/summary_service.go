package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"healthforge/internal/model"
)

// SummaryService builds human-readable daily digests for patients and their
// guardians.
type SummaryService struct {
	tracker   *TrackerService
	analytics *AnalyticsService
}

func NewSummaryService(tracker *TrackerService, analytics *AnalyticsService) *SummaryService {
	return &SummaryService{tracker: tracker, analytics: analytics}
}

// DailySummary renders today's tasks grouped by time block, with completion
// state and the current streak. It backfills first so every active template
// shows up.
func (s *SummaryService) DailySummary(ctx context.Context, user model.User, loc *time.Location) (string, error) {
	if err := s.tracker.EnsureTodayRecords(ctx, user.ID, loc); err != nil {
		return "", err
	}
	today := s.tracker.Today(loc)

	views, err := s.tracker.TasksForDate(ctx, user.ID, today)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("🩺 <b>Daily health summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", today))

	if len(views) == 0 {
		builder.WriteString("\nNo tasks scheduled. Add one with /newtask.")
		return builder.String(), nil
	}

	completed := 0
	for _, view := range views {
		if view.Record.IsCompleted {
			completed++
		}
	}
	builder.WriteString(fmt.Sprintf("✅ %d of %d done\n", completed, len(views)))

	stats, err := s.analytics.Stats(ctx, user.ID, loc)
	if err == nil && stats.Streak > 0 {
		builder.WriteString(fmt.Sprintf("🔥 %d-day streak\n", stats.Streak))
	}

	for _, block := range model.TimeBlocks {
		var lines []string
		for _, view := range views {
			if view.Template.TimeBlock != block {
				continue
			}
			lines = append(lines, formatTaskLine(view))
		}
		if len(lines) == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("\n<b>%s</b>\n", timeBlockHeading(block)))
		builder.WriteString(strings.Join(lines, "\n"))
		builder.WriteByte('\n')
	}

	return strings.TrimSpace(builder.String()), nil
}

// GuardianAlert is the short message sent to guardians when a patient
// completes a task.
func (s *SummaryService) GuardianAlert(user model.User, view TaskView) string {
	name := strings.TrimSpace(user.FirstName)
	if name == "" {
		name = user.Username
	}
	return fmt.Sprintf("✅ %s completed: %s", html.EscapeString(name), html.EscapeString(view.Template.Title))
}

func formatTaskLine(view TaskView) string {
	mark := "⬜"
	if view.Record.IsCompleted {
		mark = "✅"
	}
	line := fmt.Sprintf("%s %s", mark, html.EscapeString(strings.TrimSpace(view.Template.Title)))
	if view.Template.TimeOfDay != "" {
		line += fmt.Sprintf(" · %s", html.EscapeString(view.Template.TimeOfDay))
	}
	if view.Template.Priority == model.PriorityHigh {
		line += " ❗"
	}
	return line
}

func timeBlockHeading(block model.TimeBlock) string {
	switch block {
	case model.TimeBlockMorning:
		return "🌅 Morning"
	case model.TimeBlockAfternoon:
		return "🌤 Afternoon"
	case model.TimeBlockEvening:
		return "🌇 Evening"
	case model.TimeBlockNight:
		return "🌙 Night"
	}
	return string(block)
}
