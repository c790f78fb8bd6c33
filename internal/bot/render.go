package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"healthforge/internal/assistant"
	"healthforge/internal/model"
	"healthforge/internal/service"
)

// Presentation metadata for the domain enums lives here, out of the domain
// types themselves.

var categoryIcons = map[model.Category]string{
	model.CategoryMedication: "💊",
	model.CategoryExercise:   "🏃",
	model.CategoryDiet:       "🥗",
	model.CategoryMonitoring: "🩺",
	model.CategoryLifestyle:  "🌿",
	model.CategoryGeneral:    "📌",
}

var timeBlockLabels = map[model.TimeBlock]string{
	model.TimeBlockMorning:   "🌅 Morning",
	model.TimeBlockAfternoon: "🌤 Afternoon",
	model.TimeBlockEvening:   "🌇 Evening",
	model.TimeBlockNight:     "🌙 Night",
}

var priorityMarks = map[model.Priority]string{
	model.PriorityHigh:   "❗",
	model.PriorityMedium: "",
	model.PriorityLow:    "",
}

func categoryIcon(c model.Category) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "📌"
}

func timeBlockLabel(b model.TimeBlock) string {
	if label, ok := timeBlockLabels[b]; ok {
		return label
	}
	return string(b)
}

func escape(s string) string {
	return html.EscapeString(s)
}

func shortTitle(title string, max int) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	return string(runes[:max-1]) + "…"
}

func formatTaskLine(view service.TaskView) string {
	mark := "⬜"
	if view.Record.IsCompleted {
		mark = "✅"
	}
	line := fmt.Sprintf("%s %s #%d %s", mark, categoryIcon(view.Template.Category), view.Template.ID, escape(view.Template.Title))
	if view.Template.TimeOfDay != "" {
		line += " · " + escape(view.Template.TimeOfDay)
	}
	line += priorityMarks[view.Template.Priority]
	return line
}

func formatHistory(template *model.TaskTemplate, records []model.DailyTaskRecord, limit int) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📖 <b>History: %s</b>\n", escape(template.Title)))
	if len(records) == 0 {
		builder.WriteString("No records yet.")
		return builder.String()
	}
	rate := service.CompletionRate(records)
	builder.WriteString(fmt.Sprintf("Completed %.0f%% of %d days\n\n", rate*100, len(records)))
	for i, record := range records {
		if i >= limit {
			builder.WriteString(fmt.Sprintf("… and %d more days\n", len(records)-limit))
			break
		}
		mark := "⬜"
		if record.IsCompleted {
			mark = "✅"
		}
		builder.WriteString(fmt.Sprintf("%s %s\n", mark, record.Date))
	}
	return strings.TrimSpace(builder.String())
}

func formatStats(stats service.UserStats) string {
	var builder strings.Builder
	builder.WriteString("📊 <b>Your progress</b>\n")
	if stats.Streak > 0 {
		builder.WriteString(fmt.Sprintf("🔥 Current streak: <b>%d</b> day(s)\n", stats.Streak))
	} else {
		builder.WriteString("🔥 No active streak yet — complete all of today's tasks to start one.\n")
	}
	if len(stats.Templates) == 0 {
		builder.WriteString("\nNo tasks yet. Add one with /newtask.")
		return builder.String()
	}
	builder.WriteString("\n")
	for _, ts := range stats.Templates {
		state := ""
		if !ts.Template.IsActive {
			state = " (paused)"
		}
		builder.WriteString(fmt.Sprintf("%s %s%s — %.0f%% of %d day(s)\n",
			categoryIcon(ts.Template.Category), escape(ts.Template.Title), state,
			ts.CompletionRate*100, ts.TotalDays))
	}
	return strings.TrimSpace(builder.String())
}

func formatDietPlan(plan assistant.DietPlan) string {
	var builder strings.Builder
	builder.WriteString("🥗 <b>Your diet plan</b>\n")
	if plan.Fallback {
		builder.WriteString("<i>The AI service was unavailable, so here is a sensible default plan.</i>\n")
	}
	writeMeal := func(heading string, name, desc string, calories int) {
		builder.WriteString(fmt.Sprintf("\n<b>%s:</b> %s", heading, escape(name)))
		if calories > 0 {
			builder.WriteString(fmt.Sprintf(" (~%d kcal)", calories))
		}
		if desc != "" {
			builder.WriteString("\n" + escape(desc))
		}
		builder.WriteByte('\n')
	}
	writeMeal("Breakfast", plan.Breakfast.Name, plan.Breakfast.Description, plan.Breakfast.Calories)
	writeMeal("Lunch", plan.Lunch.Name, plan.Lunch.Description, plan.Lunch.Calories)
	writeMeal("Dinner", plan.Dinner.Name, plan.Dinner.Description, plan.Dinner.Calories)
	for _, snack := range plan.Snacks {
		writeMeal("Snack", snack.Name, snack.Description, snack.Calories)
	}
	if plan.Advice != "" {
		builder.WriteString("\n💡 " + escape(plan.Advice))
	}
	return strings.TrimSpace(builder.String())
}

func formatTaskSaved(template *model.TaskTemplate) string {
	var builder strings.Builder
	builder.WriteString("✅ <b>Task saved</b>\n")
	builder.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", template.ID))
	builder.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(template.Title)))
	if template.Description != "" {
		builder.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(template.Description)))
	}
	builder.WriteString(fmt.Sprintf("• <b>Category:</b> %s %s\n", categoryIcon(template.Category), template.Category))
	builder.WriteString(fmt.Sprintf("• <b>When:</b> %s", timeBlockLabel(template.TimeBlock)))
	if template.TimeOfDay != "" {
		builder.WriteString(fmt.Sprintf(" at %s", escape(template.TimeOfDay)))
	}
	builder.WriteByte('\n')
	builder.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", template.Priority))
	return strings.TrimSpace(builder.String())
}

// Keyboards.

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelToday),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelStats),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, (len(model.Categories)+1)/2)
	for i := 0; i < len(model.Categories); i += 2 {
		row := []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(string(model.Categories[i])),
		}
		if i+1 < len(model.Categories) {
			row = append(row, tgbotapi.NewKeyboardButton(string(model.Categories[i+1])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(btnCancelDialog)})
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func timeBlockKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(model.TimeBlockMorning)),
			tgbotapi.NewKeyboardButton(string(model.TimeBlockAfternoon)),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(model.TimeBlockEvening)),
			tgbotapi.NewKeyboardButton(string(model.TimeBlockNight)),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(model.PriorityLow)),
			tgbotapi.NewKeyboardButton(string(model.PriorityMedium)),
			tgbotapi.NewKeyboardButton(string(model.PriorityHigh)),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func todayKeyboard(views []service.TaskView) tgbotapi.InlineKeyboardMarkup {
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, view := range views {
		var row []tgbotapi.InlineKeyboardButton
		if view.Record.IsCompleted {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("↩️ #%d · %s", view.Template.ID, shortTitle(view.Template.Title, 20)),
				fmt.Sprintf("%s%d", cbUndoPrefix, view.Template.ID)))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d · %s", view.Template.ID, shortTitle(view.Template.Title, 20)),
				fmt.Sprintf("%s%d", cbCompletePrefix, view.Template.ID)))
		}
		buttons = append(buttons, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...)
}

func parseUserLocation(user *model.User, fallback *time.Location) *time.Location {
	if user == nil || user.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}
