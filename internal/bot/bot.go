package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"healthforge/internal/assistant"
	"healthforge/internal/config"
	"healthforge/internal/model"
	"healthforge/internal/repository"
	"healthforge/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
	stageTimeBlock
	stageTimeOfDay
	stagePriority
)

const (
	cbCompletePrefix = "done:"
	cbUndoPrefix     = "undo:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnCancelDialog = "⏪ Cancel input"

	menuLabelNewTask = "➕ New task"
	menuLabelToday   = "📋 Today"
	menuLabelStats   = "📊 Stats"
	menuLabelHelp    = "ℹ️ Help"
)

type conversationState struct {
	stage conversationStage
	input service.TemplateInput
}

// Bot aggregates the Telegram API with the tracker services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	tracker       *service.TrackerService
	analytics     *service.AnalyticsService
	summary       *service.SummaryService
	assist        *assistant.Assistant
	config        *config.Config
	logger        *zap.Logger
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(
	token string,
	userRepo *repository.UserRepository,
	tracker *service.TrackerService,
	analytics *service.AnalyticsService,
	summary *service.SummaryService,
	assist *assistant.Assistant,
	cfg *config.Config,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Info("bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		tracker:       tracker,
		analytics:     analytics,
		summary:       summary,
		assist:        assist,
		config:        cfg,
		logger:        logger,
		conversations: make(map[int64]*conversationState),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Error("handle message", zap.Error(err))
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && strings.TrimSpace(msg.Text) == btnCancelDialog {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Info("command",
			zap.Int64("from", msg.From.ID),
			zap.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't understand that. Use /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelNewTask:
		return true, b.startNewTaskConversation(ctx, msg)
	case menuLabelToday:
		return true, b.handleToday(ctx, msg)
	case menuLabelStats:
		return true, b.handleStats(ctx, msg)
	case menuLabelHelp:
		return true, b.handleHelp(msg)
	}
	return false, nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks", "today":
		return b.handleToday(ctx, msg)
	case "complete":
		return b.handleToggle(ctx, msg, true)
	case "undo":
		return b.handleToggle(ctx, msg, false)
	case "reset":
		return b.handleReset(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "pause":
		return b.handleSetActive(ctx, msg, false)
	case "resume":
		return b.handleSetActive(ctx, msg, true)
	case "history":
		return b.handleHistory(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "summary":
		return b.handleSummary(ctx, msg)
	case "diet":
		return b.handleDiet(ctx, msg)
	case "ask":
		return b.handleAsk(ctx, msg)
	case "guardian":
		return b.handleGuardian(ctx, msg)
	case "watch":
		return b.handleWatch(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi %s!\n<b>I'm HealthForge — I help you stay on top of your daily health tasks.</b>\n\nCommands:\n"+
			"• /newtask — add a recurring health task\n"+
			"• /tasks — today's checklist\n"+
			"• /stats — completion rates and streak\n"+
			"• /diet — AI diet plan\n"+
			"• /ask — ask the health assistant\n"+
			"• /guardian — share progress with family\n"+
			"• /help — all commands",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /newtask — add a task step by step\n" +
		"• /tasks — today's checklist with buttons\n" +
		"• /complete &lt;id&gt; — mark a task done for today\n" +
		"• /undo &lt;id&gt; — mark it pending again\n" +
		"• /reset — clear all of today's completions\n" +
		"• /pause &lt;id&gt; / /resume &lt;id&gt; — pause a task without losing history\n" +
		"• /delete &lt;id&gt; — delete a task and its history\n" +
		"• /history &lt;id&gt; — a task's day-by-day history\n" +
		"• /stats — completion rates and streak\n" +
		"• /summary — today's summary message\n" +
		"• /diet — generate an AI diet plan\n" +
		"• /ask &lt;question&gt; — ask the health assistant\n" +
		"• /guardian — get your guardian invite code\n" +
		"• /watch &lt;code&gt; — follow a patient as guardian\n" +
		"• /cancel — cancel the current input"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New health task.\n<b>Step 1:</b> what should I call it?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title can't be empty. What should I call the task?", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press Skip).", skipKeyboard())
	case stageDescription:
		if text != btnSkip {
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category.", categoryKeyboard())
	case stageCategory:
		category, err := model.ParseCategory(strings.ToUpper(text))
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Please pick one of the category buttons.", categoryKeyboard())
		}
		state.input.Category = category
		state.stage = stageTimeBlock
		return b.sendWithReplyMarkup(msg.Chat.ID, "🕑 Which part of the day?", timeBlockKeyboard())
	case stageTimeBlock:
		block, err := model.ParseTimeBlock(strings.ToUpper(text))
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Please pick one of the time blocks.", timeBlockKeyboard())
		}
		state.input.TimeBlock = block
		state.stage = stageTimeOfDay
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ What time? e.g. <code>8:00 AM</code> (or Skip).", skipKeyboard())
	case stageTimeOfDay:
		if text != btnSkip {
			state.input.TimeOfDay = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "⚖️ How important is it?", priorityKeyboard())
	case stagePriority:
		priority, err := model.ParsePriority(strings.ToUpper(text))
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Please pick one of the priority buttons.", priorityKeyboard())
		}
		state.input.Priority = priority
		err = b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TemplateInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	template, err := b.tracker.CreateTemplate(ctx, user.ID, input)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't save the task: %s", escape(err.Error())))
	}

	b.logger.Info("template created",
		zap.Uint("template_id", template.ID),
		zap.Uint("user_id", user.ID),
		zap.String("category", string(template.Category)))

	sendErr := b.sendTextWithRemove(chatID, formatTaskSaved(template))
	if sendErr != nil {
		return sendErr
	}
	return b.sendToday(ctx, chatID, user)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendToday(ctx, msg.Chat.ID, user)
}

// sendToday backfills, then renders today's checklist with toggle buttons.
func (b *Bot) sendToday(ctx context.Context, chatID int64, user *model.User) error {
	loc := parseUserLocation(user, time.Local)
	if err := b.tracker.EnsureTodayRecords(ctx, user.ID, loc); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't prepare today's tasks: %s", escape(err.Error())))
	}
	today := b.tracker.Today(loc)

	views, err := b.tracker.TasksForDate(ctx, user.ID, today)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't load tasks: %s", escape(err.Error())))
	}
	if len(views) == 0 {
		return b.sendText(chatID, "No tasks for today. Add one with /newtask.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Today · %s</b>\n", today))
	builder.WriteString("Tap a button to toggle a task.\n")
	for _, block := range model.TimeBlocks {
		var lines []string
		for _, view := range views {
			if view.Template.TimeBlock == block {
				lines = append(lines, formatTaskLine(view))
			}
		}
		if len(lines) == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("\n<b>%s</b>\n", timeBlockLabel(block)))
		builder.WriteString(strings.Join(lines, "\n"))
		builder.WriteByte('\n')
	}

	out := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	out.ReplyMarkup = todayKeyboard(views)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", zap.Error(err))
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.toggleFromCallback(ctx, cb, strings.TrimPrefix(data, cbCompletePrefix), true)
	case strings.HasPrefix(data, cbUndoPrefix):
		return b.toggleFromCallback(ctx, cb, strings.TrimPrefix(data, cbUndoPrefix), false)
	}
	return nil
}

func (b *Bot) toggleFromCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, rawID string, completed bool) error {
	templateID, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil
	}
	user, err := b.userRepo.FindByTelegramID(ctx, cb.From.ID)
	if err != nil {
		return err
	}
	if err := b.toggleTask(ctx, user, uint(templateID), completed); err != nil {
		return err
	}
	return b.sendToday(ctx, cb.Message.Chat.ID, user)
}

func (b *Bot) handleToggle(ctx context.Context, msg *tgbotapi.Message, completed bool) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give me the task id, e.g. /complete 3")
	}
	templateID, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return b.sendText(msg.Chat.ID, "The task id must be a number.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := b.toggleTask(ctx, user, uint(templateID), completed); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't update the task: %s", escape(err.Error())))
	}
	return b.sendToday(ctx, msg.Chat.ID, user)
}

// toggleTask flips the completion state for today and alerts guardians on
// completion.
func (b *Bot) toggleTask(ctx context.Context, user *model.User, templateID uint, completed bool) error {
	loc := parseUserLocation(user, time.Local)
	if err := b.tracker.EnsureTodayRecords(ctx, user.ID, loc); err != nil {
		return err
	}
	today := b.tracker.Today(loc)

	if completed {
		if err := b.tracker.CompleteTask(ctx, templateID, today); err != nil {
			return err
		}
	} else {
		if err := b.tracker.UncompleteTask(ctx, templateID, today); err != nil {
			return err
		}
	}

	if completed {
		b.notifyGuardians(ctx, user, templateID, today)
	}
	return nil
}

func (b *Bot) notifyGuardians(ctx context.Context, user *model.User, templateID uint, date string) {
	guardians, err := b.userRepo.ListGuardians(ctx, user.ID)
	if err != nil || len(guardians) == 0 {
		return
	}
	views, err := b.tracker.TasksForDate(ctx, user.ID, date)
	if err != nil {
		return
	}
	for _, view := range views {
		if view.Template.ID != templateID {
			continue
		}
		text := b.summary.GuardianAlert(*user, view)
		for _, guardian := range guardians {
			if err := b.sendText(guardian.GuardianChatID, text); err != nil {
				b.logger.Warn("guardian alert",
					zap.Int64("guardian_chat", guardian.GuardianChatID),
					zap.Error(err))
			}
		}
		return
	}
}

func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	loc := parseUserLocation(user, time.Local)
	today := b.tracker.Today(loc)
	if err := b.tracker.ResetDate(ctx, user.ID, today); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't reset today: %s", escape(err.Error())))
	}
	return b.sendToday(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	templateID, ok := b.parseIDArgument(msg, "/delete 3")
	if !ok {
		return nil
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := b.tracker.DeleteTemplate(ctx, user.ID, templateID); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't delete the task: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, "🗑 Task and its history deleted.")
}

func (b *Bot) handleSetActive(ctx context.Context, msg *tgbotapi.Message, active bool) error {
	example := "/pause 3"
	if active {
		example = "/resume 3"
	}
	templateID, ok := b.parseIDArgument(msg, example)
	if !ok {
		return nil
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if active {
		err = b.tracker.ResumeTemplate(ctx, user.ID, templateID)
	} else {
		err = b.tracker.PauseTemplate(ctx, user.ID, templateID)
	}
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't update the task: %s", escape(err.Error())))
	}
	if active {
		return b.sendText(msg.Chat.ID, "▶️ Task resumed; it will be back on your checklist tomorrow (or after /tasks).")
	}
	return b.sendText(msg.Chat.ID, "⏸ Task paused. Its history is kept; /resume brings it back.")
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) error {
	templateID, ok := b.parseIDArgument(msg, "/history 3")
	if !ok {
		return nil
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	template, err := b.tracker.GetTemplate(ctx, user.ID, templateID)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Task not found.")
	}
	records, err := b.tracker.History(ctx, user.ID, templateID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't load history: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatHistory(template, records, 14))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	loc := parseUserLocation(user, time.Local)
	stats, err := b.analytics.Stats(ctx, user.ID, loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't compute stats: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	loc := parseUserLocation(user, time.Local)
	text, err := b.summary.DailySummary(ctx, *user, loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't build the summary: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleDiet(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.assist.Enabled() {
		return b.sendText(msg.Chat.ID, "The AI assistant is not configured on this server.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	// Tracked categories double as a rough profile.
	templates, err := b.tracker.ListTemplates(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't load your profile: %s", escape(err.Error())))
	}
	profile := assistant.PatientProfile{Notes: strings.TrimSpace(msg.CommandArguments())}
	seen := make(map[model.Category]bool)
	for _, template := range templates {
		if !seen[template.Category] {
			seen[template.Category] = true
			profile.Conditions = append(profile.Conditions, "tracks "+strings.ToLower(string(template.Category))+" tasks")
		}
	}

	plan, err := b.assist.GenerateDietPlan(ctx, profile)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't generate a plan: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatDietPlan(plan))
}

func (b *Bot) handleAsk(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.assist.Enabled() {
		return b.sendText(msg.Chat.ID, "The AI assistant is not configured on this server.")
	}
	question := strings.TrimSpace(msg.CommandArguments())
	if question == "" {
		return b.sendText(msg.Chat.ID, "Ask me something, e.g. /ask what should I eat before a workout?")
	}
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	answer, err := b.assist.Chat(ctx, nil, question)
	if err != nil {
		return b.sendText(msg.Chat.ID, "The assistant is unavailable right now, please try again later.")
	}
	return b.sendText(msg.Chat.ID, escape(answer))
}

func (b *Bot) handleGuardian(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	guardians, err := b.userRepo.ListGuardians(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't load guardians: %s", escape(err.Error())))
	}

	var builder strings.Builder
	builder.WriteString("👪 <b>Guardians</b>\n")
	builder.WriteString(fmt.Sprintf("Share this code; a guardian sends <code>/watch %s</code> to follow your progress.\n", escape(user.GuardianCode)))
	if len(guardians) == 0 {
		builder.WriteString("\nNobody is watching yet.")
	} else {
		builder.WriteString("\nCurrently watching:\n")
		for _, guardian := range guardians {
			name := guardian.GuardianUsername
			if name == "" {
				name = fmt.Sprintf("chat %d", guardian.GuardianChatID)
			}
			builder.WriteString(fmt.Sprintf("• %s\n", escape(name)))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleWatch(ctx context.Context, msg *tgbotapi.Message) error {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return b.sendText(msg.Chat.ID, "Give me the invite code, e.g. /watch 123e4567-…")
	}
	patient, err := b.userRepo.FindByGuardianCode(ctx, code)
	if err != nil {
		return b.sendText(msg.Chat.ID, "That code doesn't match any patient.")
	}
	if patient.TelegramID == msg.From.ID {
		return b.sendText(msg.Chat.ID, "You can't watch yourself.")
	}
	if err := b.userRepo.AddGuardian(ctx, patient.ID, msg.Chat.ID, msg.From.UserName); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't link you: %s", escape(err.Error())))
	}

	name := strings.TrimSpace(patient.FirstName)
	if name == "" {
		name = patient.Username
	}
	if err := b.sendText(patient.TelegramID, "👪 A new guardian is now following your progress."); err != nil {
		b.logger.Warn("notify patient of new guardian", zap.Error(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("You're now watching %s's daily progress.", escape(name)))
}

// SendDueSummaries sends the digest to every user whose reminder time
// matches the current minute in their timezone, plus their guardians.
// Called from the scheduler once a minute.
func (b *Bot) SendDueSummaries(ctx context.Context, now time.Time) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !reminderDue(&user, now, b.config.SummaryTime) {
			continue
		}
		loc := parseUserLocation(&user, time.Local)
		text, err := b.summary.DailySummary(ctx, user, loc)
		if err != nil {
			b.logger.Warn("build summary", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.logger.Warn("send summary", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
		}
		guardians, err := b.userRepo.ListGuardians(ctx, user.ID)
		if err != nil {
			continue
		}
		for _, guardian := range guardians {
			if err := b.sendText(guardian.GuardianChatID, text); err != nil {
				b.logger.Warn("send guardian summary",
					zap.Int64("guardian_chat", guardian.GuardianChatID), zap.Error(err))
			}
		}
	}
	return nil
}

// BackfillAll materializes today's records for every user. Called from the
// scheduler shortly after midnight so checklists are ready before the first
// interaction of the day.
func (b *Bot) BackfillAll(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		loc := parseUserLocation(&user, time.Local)
		if err := b.tracker.EnsureTodayRecords(ctx, user.ID, loc); err != nil {
			b.logger.Warn("midnight backfill", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// reminderDue reports whether the user's reminder time ("HH:MM", falling
// back to the server default) matches the current minute in their timezone.
func reminderDue(user *model.User, now time.Time, fallback string) bool {
	at := user.ReminderAt
	if at == "" {
		at = fallback
	}
	loc := parseUserLocation(user, time.Local)
	return now.In(loc).Format("15:04") == at
}

func (b *Bot) parseIDArgument(msg *tgbotapi.Message, example string) (uint, bool) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		_ = b.sendText(msg.Chat.ID, fmt.Sprintf("Give me the task id, e.g. %s", example))
		return 0, false
	}
	id, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		_ = b.sendText(msg.Chat.ID, "The task id must be a number.")
		return 0, false
	}
	return uint(id), true
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName,
		b.config.Timezone, b.config.SummaryTime)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	menu := tgbotapi.NewMessage(chatID, "🔹 Main menu")
	menu.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(menu)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
