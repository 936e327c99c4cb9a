package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the reconciliation state of a gateway delivery ticket
type TicketStatus string

const (
	TicketPending        TicketStatus = "pending"
	TicketOK             TicketStatus = "ok"
	TicketError          TicketStatus = "error"
	TicketErrorTransient TicketStatus = "error_transient"
)

// PushTicket is a gateway-issued delivery handle awaiting its receipt.
// ProcessedAt set means the ticket is terminal and must never be
// reprocessed; the primary key is the gateway's globally unique ticket id.
type PushTicket struct {
	TicketID    string       `json:"ticket_id" gorm:"size:64;primaryKey"`
	PushToken   string       `json:"push_token" gorm:"size:255;not null;index"`
	UserID      *uuid.UUID   `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Status      TicketStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	Details     string       `json:"details,omitempty" gorm:"type:text"` // raw receipt payload
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty" gorm:"index"`
}
