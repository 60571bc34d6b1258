package models

import (
	"time"

	"github.com/google/uuid"
)

// Application is the client case a payment belongs to. Only ownership is read here.
type Application struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Status    string    `gorm:"column:status;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
