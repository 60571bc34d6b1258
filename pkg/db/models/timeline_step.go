package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// TimelineStep is unique per (application_id, step_key) and is upserted.
type TimelineStep struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ApplicationID uuid.UUID                `gorm:"column:application_id;type:uuid;not null;uniqueIndex:timeline_steps_application_step_key"`
	StepKey       enums.TimelineStepKey    `gorm:"column:step_key;type:text;not null;uniqueIndex:timeline_steps_application_step_key"`
	Status        enums.TimelineStepStatus `gorm:"column:status;type:text;not null"`
	Data          datatypes.JSON           `gorm:"column:data;type:jsonb"`
	CompletedAt   *time.Time               `gorm:"column:completed_at"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
