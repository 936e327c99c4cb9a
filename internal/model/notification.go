package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRecord is the user-visible copy of a sent notification.
// The physical table is owned by a separate deployment artifact; this
// struct matches its newest (v2) shape and older deployments simply lack
// the data column. Writes are best-effort and never authoritative for
// delivery.
type NotificationRecord struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index"`
	Title     string            `json:"title" gorm:"size:255;not null"`
	Body      string            `json:"body" gorm:"type:text"`
	Type      string            `json:"type" gorm:"size:50"`
	Data      map[string]string `json:"data,omitempty" gorm:"serializer:json"`
	Read      bool              `json:"read" gorm:"default:false"`
	CreatedAt time.Time         `json:"created_at"`
}

func (NotificationRecord) TableName() string { return "notifications" }

func (n *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
