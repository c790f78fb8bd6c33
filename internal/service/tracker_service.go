package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"healthforge/internal/model"
	"healthforge/internal/repository"
)

// TemplateInput represents data required to create or edit a task template.
type TemplateInput struct {
	Title       string
	Description string
	TimeOfDay   string
	TimeBlock   model.TimeBlock
	Category    model.Category
	Priority    model.Priority
}

// Validate rejects incomplete input before anything touches the store.
func (in TemplateInput) Validate() error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !in.TimeBlock.Valid() {
		return fmt.Errorf("invalid time block %q", in.TimeBlock)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("invalid category %q", in.Category)
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", in.Priority)
	}
	return nil
}

// TaskView joins a template with its completion record for one date.
type TaskView struct {
	Template model.TaskTemplate
	Record   model.DailyTaskRecord
}

// TrackerService owns the template/record reconciliation logic: lazily
// materializing one record per active template per day and applying
// completion toggles. Local state is the source of truth; every mutation
// enqueues an outbox entry for the remote mirror instead of syncing inline.
type TrackerService struct {
	templates *repository.TemplateRepository
	records   *repository.RecordRepository
	outbox    *repository.OutboxRepository
	clock     Clock
	logger    *zap.Logger
}

func NewTrackerService(
	templates *repository.TemplateRepository,
	records *repository.RecordRepository,
	outbox *repository.OutboxRepository,
	clock Clock,
	logger *zap.Logger,
) *TrackerService {
	return &TrackerService{
		templates: templates,
		records:   records,
		outbox:    outbox,
		clock:     clock,
		logger:    logger,
	}
}

// Today returns the current calendar date in the given location as a
// zero-padded YYYY-MM-DD string.
func (s *TrackerService) Today(loc *time.Location) string {
	return s.clock.Now().In(loc).Format(model.DateLayout)
}

// CreateTemplate validates, persists and mirrors a new template.
func (s *TrackerService) CreateTemplate(ctx context.Context, userID uint, input TemplateInput) (*model.TaskTemplate, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	template := model.TaskTemplate{
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		TimeOfDay:   input.TimeOfDay,
		TimeBlock:   input.TimeBlock,
		Category:    input.Category,
		Priority:    input.Priority,
		IsActive:    true,
	}
	if err := s.templates.Create(ctx, &template); err != nil {
		return nil, err
	}
	s.enqueue(ctx, model.OutboxTemplateUpsert, template.ID, "")
	return &template, nil
}

// UpdateTemplate replaces all mutable fields of an existing template.
func (s *TrackerService) UpdateTemplate(ctx context.Context, userID, templateID uint, input TemplateInput) (*model.TaskTemplate, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template.UserID != userID {
		return nil, fmt.Errorf("template %d does not belong to user %d", templateID, userID)
	}

	template.Title = input.Title
	template.Description = input.Description
	template.TimeOfDay = input.TimeOfDay
	template.TimeBlock = input.TimeBlock
	template.Category = input.Category
	template.Priority = input.Priority
	if err := s.templates.Update(ctx, template); err != nil {
		return nil, err
	}
	s.enqueue(ctx, model.OutboxTemplateUpsert, template.ID, "")
	return template, nil
}

// DeleteTemplate removes the template and, via cascade, its whole history.
func (s *TrackerService) DeleteTemplate(ctx context.Context, userID, templateID uint) error {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if template.UserID != userID {
		return fmt.Errorf("template %d does not belong to user %d", templateID, userID)
	}

	// The row is gone after the delete, so snapshot the remote id now.
	payload := ""
	if template.RemoteID != nil {
		raw, err := json.Marshal(map[string]string{"remote_id": *template.RemoteID})
		if err == nil {
			payload = string(raw)
		}
	}
	if err := s.templates.Delete(ctx, userID, templateID); err != nil {
		return err
	}
	if payload != "" {
		s.enqueue(ctx, model.OutboxTemplateDelete, templateID, payload)
	}
	return nil
}

// PauseTemplate disables backfill for the template while keeping history.
func (s *TrackerService) PauseTemplate(ctx context.Context, userID, templateID uint) error {
	if err := s.templates.SetActive(ctx, userID, templateID, false); err != nil {
		return err
	}
	s.enqueue(ctx, model.OutboxTemplateUpsert, templateID, "")
	return nil
}

// ResumeTemplate re-enables backfill for a paused template.
func (s *TrackerService) ResumeTemplate(ctx context.Context, userID, templateID uint) error {
	if err := s.templates.SetActive(ctx, userID, templateID, true); err != nil {
		return err
	}
	s.enqueue(ctx, model.OutboxTemplateUpsert, templateID, "")
	return nil
}

func (s *TrackerService) GetTemplate(ctx context.Context, userID, templateID uint) (*model.TaskTemplate, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template.UserID != userID {
		return nil, fmt.Errorf("template %d does not belong to user %d", templateID, userID)
	}
	return template, nil
}

func (s *TrackerService) ListTemplates(ctx context.Context, userID uint) ([]model.TaskTemplate, error) {
	return s.templates.ListAll(ctx, userID)
}

// EnsureTodayRecords is the idempotent backfill: after it returns, every
// active template has a record for today. Inactive templates never get one.
// Safe to call on every interaction; the (template, date) unique index and
// the existence check keep repeated calls from duplicating rows.
func (s *TrackerService) EnsureTodayRecords(ctx context.Context, userID uint, loc *time.Location) error {
	today := s.Today(loc)

	active, err := s.templates.ListActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("list active templates: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	existing, err := s.records.ListByDate(ctx, userID, today)
	if err != nil {
		return fmt.Errorf("list today's records: %w", err)
	}
	have := make(map[uint]bool, len(existing))
	for _, record := range existing {
		have[record.TemplateID] = true
	}

	var missing []model.DailyTaskRecord
	for _, template := range active {
		if !have[template.ID] {
			missing = append(missing, model.DailyTaskRecord{
				TemplateID:  template.ID,
				Date:        today,
				IsCompleted: false,
			})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := s.records.BulkInsert(ctx, missing); err != nil {
		return fmt.Errorf("backfill records: %w", err)
	}

	created, err := s.records.ListByDate(ctx, userID, today)
	if err == nil {
		for _, record := range created {
			if !have[record.TemplateID] {
				s.enqueue(ctx, model.OutboxRecordUpsert, record.ID, "")
			}
		}
	}
	return nil
}

// TasksForDate joins active templates with their record for the date.
// Active templates without a materialized record are omitted; for "today"
// callers run EnsureTodayRecords first. Order is stable: time block, then
// priority descending, then template id.
func (s *TrackerService) TasksForDate(ctx context.Context, userID uint, date string) ([]TaskView, error) {
	templates, err := s.templates.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	byTemplate := make(map[uint]model.DailyTaskRecord, len(records))
	for _, record := range records {
		byTemplate[record.TemplateID] = record
	}

	views := make([]TaskView, 0, len(templates))
	for _, template := range templates {
		record, ok := byTemplate[template.ID]
		if !ok {
			continue
		}
		views = append(views, TaskView{Template: template, Record: record})
	}

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Template, views[j].Template
		if a.TimeBlock != b.TimeBlock {
			return a.TimeBlock.Order() < b.TimeBlock.Order()
		}
		if a.Priority != b.Priority {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		return a.ID < b.ID
	})
	return views, nil
}

// CompleteTask marks the (template, date) record completed and stamps the
// completion time. Toggling an already-completed record changes nothing.
// A missing record means backfill has not run; that is a tolerated no-op.
func (s *TrackerService) CompleteTask(ctx context.Context, templateID uint, date string) error {
	return s.setCompletion(ctx, templateID, date, true)
}

// UncompleteTask returns the record to pending and clears the timestamp.
func (s *TrackerService) UncompleteTask(ctx context.Context, templateID uint, date string) error {
	return s.setCompletion(ctx, templateID, date, false)
}

func (s *TrackerService) setCompletion(ctx context.Context, templateID uint, date string, completed bool) error {
	record, err := s.records.GetByTemplateAndDate(ctx, templateID, date)
	if err != nil {
		return err
	}
	if record == nil {
		s.logger.Warn("completion toggle for missing record",
			zap.Uint("template_id", templateID),
			zap.String("date", date),
			zap.Bool("completed", completed))
		return nil
	}
	if record.IsCompleted == completed {
		return nil
	}

	var completedAt *time.Time
	if completed {
		now := s.clock.Now()
		completedAt = &now
	}
	if err := s.records.SetCompletion(ctx, record.ID, completed, completedAt); err != nil {
		return err
	}
	s.enqueue(ctx, model.OutboxRecordUpsert, record.ID, "")
	return nil
}

// ResetDate clears completion for every record of the user on that day.
// Explicit undo-all; past days roll over naturally because backfill only
// ever touches the current date.
func (s *TrackerService) ResetDate(ctx context.Context, userID uint, date string) error {
	if err := s.records.ResetByDate(ctx, userID, date); err != nil {
		return err
	}
	records, err := s.records.ListByDate(ctx, userID, date)
	if err != nil {
		return err
	}
	for _, record := range records {
		s.enqueue(ctx, model.OutboxRecordUpsert, record.ID, "")
	}
	return nil
}

// TasksByCategory filters the date's join down to one category.
func (s *TrackerService) TasksByCategory(ctx context.Context, userID uint, date string, category model.Category) ([]TaskView, error) {
	return s.filter(ctx, userID, date, func(v TaskView) bool { return v.Template.Category == category })
}

// TasksByTimeBlock filters the date's join down to one time block.
func (s *TrackerService) TasksByTimeBlock(ctx context.Context, userID uint, date string, block model.TimeBlock) ([]TaskView, error) {
	return s.filter(ctx, userID, date, func(v TaskView) bool { return v.Template.TimeBlock == block })
}

// TasksByPriority filters the date's join down to one priority.
func (s *TrackerService) TasksByPriority(ctx context.Context, userID uint, date string, priority model.Priority) ([]TaskView, error) {
	return s.filter(ctx, userID, date, func(v TaskView) bool { return v.Template.Priority == priority })
}

// TasksByCompletion filters the date's join by completion state.
func (s *TrackerService) TasksByCompletion(ctx context.Context, userID uint, date string, completed bool) ([]TaskView, error) {
	return s.filter(ctx, userID, date, func(v TaskView) bool { return v.Record.IsCompleted == completed })
}

func (s *TrackerService) filter(ctx context.Context, userID uint, date string, keep func(TaskView) bool) ([]TaskView, error) {
	views, err := s.TasksForDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	out := views[:0]
	for _, view := range views {
		if keep(view) {
			out = append(out, view)
		}
	}
	return out, nil
}

// History returns a template's full record history, newest day first.
func (s *TrackerService) History(ctx context.Context, userID, templateID uint) ([]model.DailyTaskRecord, error) {
	if _, err := s.GetTemplate(ctx, userID, templateID); err != nil {
		return nil, err
	}
	return s.records.ListByTemplate(ctx, templateID)
}

// enqueue records a pending mirror mutation. Mirror trouble must never
// surface to the caller, so failures are only logged.
func (s *TrackerService) enqueue(ctx context.Context, kind model.OutboxKind, entityID uint, payload string) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, kind, entityID, payload); err != nil {
		s.logger.Error("enqueue mirror mutation",
			zap.String("kind", string(kind)),
			zap.Uint("entity_id", entityID),
			zap.Error(err))
	}
}
