package model

import "github.com/google/uuid"

// ========== Auth DTOs ==========

type RegisterRequest struct {
	Name     string     `json:"name" binding:"required,min=2,max=100"`
	Email    string     `json:"email" binding:"required,email"`
	Password string     `json:"password" binding:"required,min=6"`
	CityID   *uuid.UUID `json:"city_id"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ========== Device / push token DTOs ==========

type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	Platform   string `json:"platform" binding:"required,oneof=ios android web"`
	AppVersion string `json:"app_version" binding:"max=50"`
	DeviceID   string `json:"device_id" binding:"max=100"`
}

type UnregisterDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

type UpdatePreferencesRequest struct {
	Token       string          `json:"token" binding:"required"`
	Preferences PushPreferences `json:"preferences" binding:"required"`
}

// ========== Dispatch DTOs ==========

// DispatchRequest is the caller surface for alert/adoption workflows.
// Exactly one of user_ids or city_id selects the target set.
type DispatchRequest struct {
	Title     string            `json:"title" binding:"required,max=255"`
	Body      string            `json:"body" binding:"max=2000"`
	Type      string            `json:"type" binding:"max=50"`
	Data      map[string]string `json:"data"`
	Category  string            `json:"category" binding:"required,oneof=system marketing"`
	UserIDs   []uuid.UUID       `json:"user_ids"`
	CityID    *uuid.UUID        `json:"city_id"`
	Sound     string            `json:"sound"`
	Priority  string            `json:"priority" binding:"omitempty,oneof=default normal high"`
	Badge     *int              `json:"badge"`
	ChannelID string            `json:"channel_id"`
}

// DispatchResponse summarizes a dispatch for the caller's audit log.
// accepted < targeted is expected steady-state behavior, not an error.
type DispatchResponse struct {
	Targeted int `json:"targeted"`
	Accepted int `json:"accepted"`
}

// ========== History DTOs ==========

type NotificationListRequest struct {
	Limit  int `form:"limit,default=50"`
	Offset int `form:"offset,default=0"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
