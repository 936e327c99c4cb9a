package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered platform user. The full profile (shelter
// membership, roles, avatar, ...) lives with the platform CRUD layer; the
// notification core only needs ownership and city scoping.
type User struct {
	ID       uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name     string     `json:"name" gorm:"size:100;not null"`
	Email    string     `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Password string     `json:"-" gorm:"size:255"`
	CityID   *uuid.UUID `json:"city_id" gorm:"type:uuid;index"` // home city, used for city-wide alert fan-out

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserResponse is the safe version of User for API responses
type UserResponse struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	CityID *uuid.UUID `json:"city_id,omitempty"`
}

// ToResponse converts User to safe UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		CityID: u.CityID,
	}
}
