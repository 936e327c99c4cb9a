package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketRepository owns the push_tickets table
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Save persists a freshly issued ticket as pending. A duplicate ticket id
// is ignored: ticket ids are globally unique, so a conflict can only be a
// replayed insert.
func (r *TicketRepository) Save(ticketID, token string, userID *uuid.UUID) error {
	row := model.PushTicket{
		TicketID:  ticketID,
		PushToken: token,
		UserID:    userID,
		Status:    model.TicketPending,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticket_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// PendingBatch returns up to limit unprocessed tickets, oldest first
func (r *TicketRepository) PendingBatch(limit int) ([]model.PushTicket, error) {
	var tickets []model.PushTicket
	err := r.db.
		Where("processed_at IS NULL").
		Order("created_at asc").
		Limit(limit).
		Find(&tickets).Error
	return tickets, err
}

// MarkProcessed transitions a ticket to a terminal state in a single
// atomic update predicated on the ticket still being pending. Returns
// false when the ticket was already terminal, which lets a racing worker
// run detect that the side effects were already taken.
func (r *TicketRepository) MarkProcessed(ticketID string, status model.TicketStatus, details string) (bool, error) {
	res := r.db.Model(&model.PushTicket{}).
		Where("ticket_id = ? AND processed_at IS NULL", ticketID).
		Updates(map[string]interface{}{
			"status":       status,
			"details":      details,
			"processed_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountPending reports the reconciliation backlog, for ops visibility
func (r *TicketRepository) CountPending() (int64, error) {
	var count int64
	err := r.db.Model(&model.PushTicket{}).Where("processed_at IS NULL").Count(&count).Error
	return count, err
}
