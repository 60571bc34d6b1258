package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// OutboxEvent represents an append-only event emitted via the outbox pattern.
// (event_type, aggregate_type, aggregate_id, dedupe_key) is unique. Events emitted once per
// aggregate leave dedupe_key empty; repeatable events key it on their source.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	DedupeKey     string                    `gorm:"column:dedupe_key;type:text;not null;default:''"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}
