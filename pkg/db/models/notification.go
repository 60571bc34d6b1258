package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gritsync/gritsync-backend/pkg/enums"
)

// Notification stores in-app notifications scoped to a user.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	ApplicationID *uuid.UUID             `gorm:"column:application_id;type:uuid"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	Link          *string                `gorm:"column:link;type:text"`
	Read          bool                   `gorm:"column:read;not null;default:false"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// PageKey orders notifications for cursor pagination.
func (n Notification) PageKey() (time.Time, uuid.UUID) {
	return n.CreatedAt, n.ID
}
