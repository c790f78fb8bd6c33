package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthforge/internal/model"
	"healthforge/internal/repository"
)

const (
	templateCollection = "task_templates"
	recordCollection   = "daily_task_records"

	baseBackoff = time.Minute
	maxBackoff  = time.Hour
	maxAttempts = 10

	drainBatchSize = 50
)

// Syncer drains the outbox into the remote mirror. Each drained entry is a
// two-phase upsert: rows without a remote id are created and the returned id
// is written back onto the local row; rows with one are replaced in place.
// Failures reschedule the entry with exponential backoff and never touch
// local task state.
type Syncer struct {
	client    *Client
	outbox    *repository.OutboxRepository
	templates *repository.TemplateRepository
	records   *repository.RecordRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewSyncer(
	client *Client,
	outbox *repository.OutboxRepository,
	templates *repository.TemplateRepository,
	records *repository.RecordRepository,
	logger *zap.Logger,
) *Syncer {
	return &Syncer{
		client:    client,
		outbox:    outbox,
		templates: templates,
		records:   records,
		logger:    logger,
		now:       time.Now,
	}
}

// Drain pushes every due outbox entry, oldest first. Entry-level failures
// are logged and rescheduled; Drain only returns an error when the outbox
// itself cannot be read.
func (s *Syncer) Drain(ctx context.Context) error {
	entries, err := s.outbox.Due(ctx, s.now(), drainBatchSize)
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}

	for _, entry := range entries {
		if err := s.push(ctx, entry); err != nil {
			s.retry(ctx, entry, err)
			continue
		}
		if err := s.outbox.MarkDone(ctx, entry.ID); err != nil {
			s.logger.Error("remove drained outbox entry", zap.Uint("entry_id", entry.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Syncer) push(ctx context.Context, entry model.OutboxEntry) error {
	switch entry.Kind {
	case model.OutboxTemplateUpsert:
		return s.pushTemplate(ctx, entry.EntityID)
	case model.OutboxRecordUpsert:
		return s.pushRecord(ctx, entry.EntityID)
	case model.OutboxTemplateDelete:
		return s.pushTemplateDelete(ctx, entry.Payload)
	default:
		// Unknown kinds are dropped rather than retried forever.
		s.logger.Warn("dropping outbox entry of unknown kind", zap.String("kind", string(entry.Kind)))
		return nil
	}
}

func (s *Syncer) pushTemplate(ctx context.Context, templateID uint) error {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if repository.IsNotFound(err) {
			// Deleted locally since the entry was queued; the delete entry
			// will handle the mirror.
			return nil
		}
		return err
	}

	doc := templateDocument(template)
	if template.RemoteID == nil {
		remoteID, err := s.client.CreateDocument(ctx, templateCollection, doc)
		if err != nil {
			return err
		}
		return s.templates.SetRemoteID(ctx, template.ID, remoteID)
	}
	return s.client.PutDocument(ctx, templateCollection, *template.RemoteID, doc)
}

func (s *Syncer) pushRecord(ctx context.Context, recordID uint) error {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	template, err := s.templates.GetByID(ctx, record.TemplateID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if template.RemoteID == nil {
		// The template's create entry is older and sits earlier in the
		// queue; retry once it has been pushed.
		return fmt.Errorf("template %d not mirrored yet", template.ID)
	}

	doc := recordDocument(record, *template.RemoteID)
	if record.RemoteID == nil {
		remoteID, err := s.client.CreateDocument(ctx, recordCollection, doc)
		if err != nil {
			return err
		}
		return s.records.SetRemoteID(ctx, record.ID, remoteID)
	}
	return s.client.PutDocument(ctx, recordCollection, *record.RemoteID, doc)
}

func (s *Syncer) pushTemplateDelete(ctx context.Context, payload string) error {
	var snapshot struct {
		RemoteID string `json:"remote_id"`
	}
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return fmt.Errorf("decode delete payload: %w", err)
	}
	if snapshot.RemoteID == "" {
		return nil
	}
	return s.client.DeleteDocument(ctx, templateCollection, snapshot.RemoteID)
}

func (s *Syncer) retry(ctx context.Context, entry model.OutboxEntry, cause error) {
	if entry.Attempts+1 >= maxAttempts {
		s.logger.Error("dropping outbox entry after too many attempts",
			zap.Uint("entry_id", entry.ID),
			zap.String("kind", string(entry.Kind)),
			zap.Int("attempts", entry.Attempts+1),
			zap.Error(cause))
		if err := s.outbox.MarkDone(ctx, entry.ID); err != nil {
			s.logger.Error("remove exhausted outbox entry", zap.Uint("entry_id", entry.ID), zap.Error(err))
		}
		return
	}

	next := s.now().Add(backoff(entry.Attempts))
	s.logger.Warn("mirror push failed, will retry",
		zap.Uint("entry_id", entry.ID),
		zap.String("kind", string(entry.Kind)),
		zap.Int("attempts", entry.Attempts+1),
		zap.Time("next_attempt_at", next),
		zap.Error(cause))
	if err := s.outbox.MarkFailed(ctx, &entry, cause, next); err != nil {
		s.logger.Error("reschedule outbox entry", zap.Uint("entry_id", entry.ID), zap.Error(err))
	}
}

// backoff doubles per attempt, capped at an hour.
func backoff(attempts int) time.Duration {
	d := baseBackoff
	for i := 0; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func templateDocument(t *model.TaskTemplate) map[string]any {
	return map[string]any{
		"local_id":    t.ID,
		"user_id":     t.UserID,
		"title":       t.Title,
		"description": t.Description,
		"time_of_day": t.TimeOfDay,
		"time_block":  string(t.TimeBlock),
		"category":    string(t.Category),
		"priority":    string(t.Priority),
		"is_active":   t.IsActive,
		"created_at":  t.CreatedAt.UnixMilli(),
	}
}

func recordDocument(r *model.DailyTaskRecord, templateRemoteID string) map[string]any {
	doc := map[string]any{
		"local_id":     r.ID,
		"template_id":  templateRemoteID,
		"date":         r.Date,
		"is_completed": r.IsCompleted,
	}
	if r.CompletedAt != nil {
		doc["completed_at"] = r.CompletedAt.UnixMilli()
	}
	return doc
}
