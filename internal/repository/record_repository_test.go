package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"healthforge/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A file-backed database: ":memory:" would give every pooled
	// connection its own empty schema.
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func newTestTemplate(t *testing.T, db *gorm.DB, userID uint, title string, active bool) *model.TaskTemplate {
	t.Helper()
	template := &model.TaskTemplate{
		UserID:    userID,
		Title:     title,
		TimeBlock: model.TimeBlockMorning,
		Category:  model.CategoryMedication,
		Priority:  model.PriorityMedium,
		IsActive:  active,
	}
	require.NoError(t, NewTemplateRepository(db).Create(context.Background(), template))
	return template
}

func TestTemplateCreateAssignsID(t *testing.T) {
	db := newTestDB(t)
	template := newTestTemplate(t, db, 1, "Take Metformin", true)
	assert.NotZero(t, template.ID)
}

func TestRecordUniqueConstraint(t *testing.T) {
	db := newTestDB(t)
	records := NewRecordRepository(db)
	ctx := context.Background()

	template := newTestTemplate(t, db, 1, "Take Metformin", true)

	first := model.DailyTaskRecord{TemplateID: template.ID, Date: "2026-03-10"}
	require.NoError(t, db.Create(&first).Error)

	dup := model.DailyTaskRecord{TemplateID: template.ID, Date: "2026-03-10"}
	assert.Error(t, db.Create(&dup).Error, "plain insert of a duplicate pair must fail")

	// BulkInsert skips existing pairs instead of failing.
	require.NoError(t, records.BulkInsert(ctx, []model.DailyTaskRecord{
		{TemplateID: template.ID, Date: "2026-03-10"},
		{TemplateID: template.ID, Date: "2026-03-11"},
	}))

	all, err := records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordCascadeDelete(t *testing.T) {
	db := newTestDB(t)
	templates := NewTemplateRepository(db)
	records := NewRecordRepository(db)
	ctx := context.Background()

	template := newTestTemplate(t, db, 1, "Evening walk", true)
	require.NoError(t, records.BulkInsert(ctx, []model.DailyTaskRecord{
		{TemplateID: template.ID, Date: "2026-03-08"},
		{TemplateID: template.ID, Date: "2026-03-09"},
		{TemplateID: template.ID, Date: "2026-03-10"},
	}))

	require.NoError(t, templates.Delete(ctx, 1, template.ID))

	remaining, err := records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "records must be removed with their template")
}

func TestRecordCascadeSurvivesConnectionRotation(t *testing.T) {
	db := newTestDB(t)
	templates := NewTemplateRepository(db)
	records := NewRecordRepository(db)
	ctx := context.Background()

	template := newTestTemplate(t, db, 1, "Take Metformin", true)
	require.NoError(t, records.BulkInsert(ctx, []model.DailyTaskRecord{
		{TemplateID: template.ID, Date: "2026-03-10"},
	}))

	// Drop idle connections so the delete runs on a fresh one; FK
	// enforcement must come from the DSN, not a one-off pragma.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(0)

	require.NoError(t, templates.Delete(ctx, 1, template.ID))

	remaining, err := records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "cascade must hold on every pooled connection")
}

func TestWithForeignKeysDSN(t *testing.T) {
	assert.Equal(t, "app.db?_foreign_keys=on", withForeignKeys("app.db"))
	assert.Equal(t, "file:app.db?cache=shared&_foreign_keys=on", withForeignKeys("file:app.db?cache=shared"))
	assert.Equal(t, "app.db?_foreign_keys=on", withForeignKeys("app.db?_foreign_keys=on"))
}

func TestRecordUpsertReplacesExisting(t *testing.T) {
	db := newTestDB(t)
	records := NewRecordRepository(db)
	ctx := context.Background()

	template := newTestTemplate(t, db, 1, "Check glucose", true)
	require.NoError(t, records.BulkInsert(ctx, []model.DailyTaskRecord{
		{TemplateID: template.ID, Date: "2026-03-10"},
	}))

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, records.Upsert(ctx, &model.DailyTaskRecord{
		TemplateID:  template.ID,
		Date:        "2026-03-10",
		IsCompleted: true,
		CompletedAt: &now,
	}))

	record, err := records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.IsCompleted, "duplicate pair must replace, not fail")
	require.NotNil(t, record.CompletedAt)

	all, err := records.ListByTemplate(ctx, template.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordSetCompletionAndReset(t *testing.T) {
	db := newTestDB(t)
	records := NewRecordRepository(db)
	ctx := context.Background()

	template := newTestTemplate(t, db, 1, "Check glucose", true)
	require.NoError(t, records.BulkInsert(ctx, []model.DailyTaskRecord{
		{TemplateID: template.ID, Date: "2026-03-10"},
	}))

	record, err := records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.IsCompleted)

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, records.SetCompletion(ctx, record.ID, true, &now))

	record, err = records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	assert.True(t, record.IsCompleted)
	require.NotNil(t, record.CompletedAt)

	require.NoError(t, records.ResetByDate(ctx, 1, "2026-03-10"))

	record, err = records.GetByTemplateAndDate(ctx, template.ID, "2026-03-10")
	require.NoError(t, err)
	assert.False(t, record.IsCompleted)
	assert.Nil(t, record.CompletedAt)
}

func TestRecordGetMissingIsNil(t *testing.T) {
	db := newTestDB(t)
	records := NewRecordRepository(db)

	record, err := records.GetByTemplateAndDate(context.Background(), 42, "2026-03-10")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestListActiveFiltersInactive(t *testing.T) {
	db := newTestDB(t)
	templates := NewTemplateRepository(db)
	ctx := context.Background()

	newTestTemplate(t, db, 1, "Active one", true)
	newTestTemplate(t, db, 1, "Active two", true)
	paused := newTestTemplate(t, db, 1, "Paused", true)
	require.NoError(t, templates.SetActive(ctx, 1, paused.ID, false))

	active, err := templates.ListActive(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := templates.ListAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOutboxLifecycle(t *testing.T) {
	db := newTestDB(t)
	outbox := NewOutboxRepository(db)
	ctx := context.Background()

	require.NoError(t, outbox.Enqueue(ctx, model.OutboxTemplateUpsert, 7, ""))
	require.NoError(t, outbox.Enqueue(ctx, model.OutboxRecordUpsert, 9, ""))

	due, err := outbox.Due(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, model.OutboxTemplateUpsert, due[0].Kind, "oldest first")

	// A failed entry moves into the future and out of the due set.
	next := time.Now().Add(time.Hour)
	require.NoError(t, outbox.MarkFailed(ctx, &due[1], assert.AnError, next))

	due, err = outbox.Due(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, outbox.MarkDone(ctx, due[0].ID))
	count, err := outbox.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGuardianLinks(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	user, err := users.UpsertFromTelegram(ctx, 100, "Ada", "", "ada", "UTC", "08:00")
	require.NoError(t, err)
	assert.NotEmpty(t, user.GuardianCode)

	found, err := users.FindByGuardianCode(ctx, user.GuardianCode)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, users.AddGuardian(ctx, user.ID, 200, "mom"))
	require.NoError(t, users.AddGuardian(ctx, user.ID, 200, "mom"), "re-linking is a no-op")

	guardians, err := users.ListGuardians(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, guardians, 1)

	require.NoError(t, users.RemoveGuardian(ctx, user.ID, 200))
	guardians, err = users.ListGuardians(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, guardians)
}

func TestUpsertFromTelegramKeepsCode(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	first, err := users.UpsertFromTelegram(ctx, 100, "Ada", "", "ada", "UTC", "08:00")
	require.NoError(t, err)

	second, err := users.UpsertFromTelegram(ctx, 100, "Ada", "Lovelace", "ada", "UTC", "08:00")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.GuardianCode, second.GuardianCode)
}
