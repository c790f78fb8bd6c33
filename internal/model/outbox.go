package model

import "time"

// OutboxKind names the remote mutation an outbox entry carries.
type OutboxKind string

const (
	OutboxTemplateUpsert OutboxKind = "template_upsert"
	OutboxTemplateDelete OutboxKind = "template_delete"
	OutboxRecordUpsert   OutboxKind = "record_upsert"
)

// OutboxEntry is a durable pending mutation against the remote mirror.
// Local writes enqueue entries instead of calling the mirror inline; a
// background drainer pushes them with retry and backoff, so a mirror outage
// never blocks or rolls back a local mutation.
type OutboxEntry struct {
	ID            uint       `gorm:"primaryKey"`
	Kind          OutboxKind `gorm:"index"`
	EntityID      uint       `gorm:"index"`
	DedupeKey     string     `gorm:"uniqueIndex"`
	Payload       string     // JSON snapshot for deletes, where the row is already gone
	Attempts      int
	NextAttemptAt time.Time `gorm:"index"`
	LastError     string
	CreatedAt     time.Time
}
