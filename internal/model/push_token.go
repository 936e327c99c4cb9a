package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform identifies the client OS a push token belongs to
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// MaxTokenFailures is the failure count at which a token is excluded from
// sends even if nothing cleared is_valid explicitly.
const MaxTokenFailures = 3

// PushPreferences is the per-token opt-in state by notification category.
// Pointer fields distinguish "never recorded" from an explicit choice; an
// absent preference means allow (older registrations predate the setting).
type PushPreferences struct {
	Marketing *bool `json:"marketing,omitempty"`
	System    *bool `json:"system,omitempty"`
}

// PushToken is one device's delivery address at the push gateway.
// A row is unique per (user_id, token); re-registration heals an
// invalidated token because the client only re-registers a token it
// currently holds.
type PushToken struct {
	ID                uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_user_push_token"`
	Token             string           `json:"token" gorm:"size:255;not null;uniqueIndex:idx_user_push_token;index"`
	Platform          Platform         `json:"platform" gorm:"size:20;default:'unknown'"`
	AppVersion        string           `json:"app_version" gorm:"size:50"`
	DeviceID          string           `json:"device_id" gorm:"size:100"`
	IsValid           bool             `json:"is_valid" gorm:"default:true;index"`
	FailureCount      int              `json:"failure_count" gorm:"default:0"`
	LastFailureReason string           `json:"last_failure_reason,omitempty" gorm:"size:100"`
	Preferences       *PushPreferences `json:"preferences,omitempty" gorm:"serializer:json"`
	LastSeen          time.Time        `json:"last_seen"`
	LastFailedAt      *time.Time       `json:"last_failed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (t *PushToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
