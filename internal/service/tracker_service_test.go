package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"healthforge/internal/model"
	"healthforge/internal/repository"
)

type trackerFixture struct {
	tracker   *TrackerService
	analytics *AnalyticsService
	records   *repository.RecordRepository
	outbox    *repository.OutboxRepository
	clock     FixedClock
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	templates := repository.NewTemplateRepository(db)
	records := repository.NewRecordRepository(db)
	outbox := repository.NewOutboxRepository(db)
	clock := FixedClock{Instant: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	return &trackerFixture{
		tracker:   NewTrackerService(templates, records, outbox, clock, zap.NewNop()),
		analytics: NewAnalyticsService(templates, records, clock),
		records:   records,
		outbox:    outbox,
		clock:     clock,
	}
}

func (f *trackerFixture) createTemplate(t *testing.T, title string) *model.TaskTemplate {
	t.Helper()
	template, err := f.tracker.CreateTemplate(context.Background(), 1, TemplateInput{
		Title:     title,
		TimeBlock: model.TimeBlockMorning,
		Category:  model.CategoryMedication,
		Priority:  model.PriorityMedium,
	})
	require.NoError(t, err)
	return template
}

func TestCreateTemplateValidation(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	_, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		TimeBlock: model.TimeBlockMorning,
		Category:  model.CategoryDiet,
		Priority:  model.PriorityLow,
	})
	assert.ErrorContains(t, err, "title")

	_, err = f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title:     "Walk",
		TimeBlock: "SOMETIME",
		Category:  model.CategoryExercise,
		Priority:  model.PriorityLow,
	})
	assert.ErrorContains(t, err, "time block")
}

func TestBackfillIsIdempotent(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Take Metformin")

	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	history, err := f.records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "second backfill call must be a no-op")
	assert.Equal(t, "2026-03-10", history[0].Date)
	assert.False(t, history[0].IsCompleted)
}

func TestBackfillSkipsInactiveTemplates(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	f.createTemplate(t, "Active one")
	f.createTemplate(t, "Active two")
	paused := f.createTemplate(t, "Paused")
	require.NoError(t, f.tracker.PauseTemplate(ctx, 1, paused.ID))

	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	views, err := f.tracker.TasksForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	assert.Len(t, views, 2, "inactive templates never get records")

	history, err := f.records.ListByTemplate(ctx, paused.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Take Metformin")
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, "2026-03-10"))
	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, "2026-03-10"))

	record, err := f.records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.IsCompleted)
	require.NotNil(t, record.CompletedAt)

	history, err := f.records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "no duplicate record from a double complete")
}

func TestCompleteThenUncomplete(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Check glucose")
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, "2026-03-10"))
	require.NoError(t, f.tracker.UncompleteTask(ctx, template.ID, "2026-03-10"))

	record, err := f.records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.IsCompleted)
	assert.Nil(t, record.CompletedAt)
}

func TestCompleteMissingRecordIsNoOp(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Walk")
	// No backfill ran for this date.
	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, "2026-03-01"))

	record, err := f.records.GetByTemplateAndDate(ctx, template.ID, "2026-03-01")
	require.NoError(t, err)
	assert.Nil(t, record, "toggle must not synthesize a record")
}

func TestResetDate(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	first := f.createTemplate(t, "Morning pills")
	second := f.createTemplate(t, "Evening pills")
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))
	require.NoError(t, f.tracker.CompleteTask(ctx, first.ID, "2026-03-10"))
	require.NoError(t, f.tracker.CompleteTask(ctx, second.ID, "2026-03-10"))

	require.NoError(t, f.tracker.ResetDate(ctx, 1, "2026-03-10"))

	views, err := f.tracker.TasksForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, view := range views {
		assert.False(t, view.Record.IsCompleted)
		assert.Nil(t, view.Record.CompletedAt)
	}
}

func TestTasksForDateOrdering(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	evening, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title: "Evening walk", TimeBlock: model.TimeBlockEvening,
		Category: model.CategoryExercise, Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	morningLow, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title: "Stretch", TimeBlock: model.TimeBlockMorning,
		Category: model.CategoryExercise, Priority: model.PriorityLow,
	})
	require.NoError(t, err)
	morningHigh, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title: "Insulin", TimeBlock: model.TimeBlockMorning,
		Category: model.CategoryMedication, Priority: model.PriorityHigh,
	})
	require.NoError(t, err)

	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	views, err := f.tracker.TasksForDate(ctx, 1, "2026-03-10")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, morningHigh.ID, views[0].Template.ID)
	assert.Equal(t, morningLow.ID, views[1].Template.ID)
	assert.Equal(t, evening.ID, views[2].Template.ID)
}

func TestFilters(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	pills, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title: "Pills", TimeBlock: model.TimeBlockMorning,
		Category: model.CategoryMedication, Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	_, err = f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title: "Walk", TimeBlock: model.TimeBlockEvening,
		Category: model.CategoryExercise, Priority: model.PriorityLow,
	})
	require.NoError(t, err)

	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))
	require.NoError(t, f.tracker.CompleteTask(ctx, pills.ID, "2026-03-10"))

	byCategory, err := f.tracker.TasksByCategory(ctx, 1, "2026-03-10", model.CategoryMedication)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Pills", byCategory[0].Template.Title)

	byBlock, err := f.tracker.TasksByTimeBlock(ctx, 1, "2026-03-10", model.TimeBlockEvening)
	require.NoError(t, err)
	require.Len(t, byBlock, 1)
	assert.Equal(t, "Walk", byBlock[0].Template.Title)

	byPriority, err := f.tracker.TasksByPriority(ctx, 1, "2026-03-10", model.PriorityHigh)
	require.NoError(t, err)
	assert.Len(t, byPriority, 1)

	pending, err := f.tracker.TasksByCompletion(ctx, 1, "2026-03-10", false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Walk", pending[0].Template.Title)
}

func TestDeleteTemplateCascades(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Old habit")
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	require.NoError(t, f.tracker.DeleteTemplate(ctx, 1, template.ID))
	require.NoError(t, f.tracker.DeleteTemplate(ctx, 1, template.ID), "deleting twice is tolerated")

	history, err := f.records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMutationsEnqueueOutboxEntries(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template := f.createTemplate(t, "Pills")
	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))
	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, "2026-03-10"))

	count, err := f.outbox.PendingCount(ctx)
	require.NoError(t, err)
	// template create + record backfill + completion toggle
	assert.EqualValues(t, 3, count)
}

// The end-to-end flow: create, backfill, complete, read back.
func TestMetforminScenario(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	template, err := f.tracker.CreateTemplate(ctx, 1, TemplateInput{
		Title:     "Take Metformin",
		TimeOfDay: "8:00 AM",
		TimeBlock: model.TimeBlockMorning,
		Category:  model.CategoryMedication,
		Priority:  model.PriorityHigh,
	})
	require.NoError(t, err)

	require.NoError(t, f.tracker.EnsureTodayRecords(ctx, 1, time.UTC))

	today := f.tracker.Today(time.UTC)
	assert.Equal(t, "2026-03-10", today)

	record, err := f.records.GetByTemplateAndDate(ctx, template.ID, today)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.IsCompleted)

	require.NoError(t, f.tracker.CompleteTask(ctx, template.ID, today))

	views, err := f.tracker.TasksForDate(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Record.IsCompleted)
	assert.NotNil(t, views[0].Record.CompletedAt)
	assert.Equal(t, "Take Metformin", views[0].Template.Title)
}
