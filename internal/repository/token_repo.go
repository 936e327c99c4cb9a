package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository owns the push_tokens table. Other subsystems never write
// to it directly; they go through the dispatcher.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert inserts a token or, on (user_id, token) conflict, refreshes the
// registration. It always forces is_valid back to true: the client only
// re-registers a token it currently holds, which is evidence the token is
// live again.
func (r *TokenRepository) Upsert(userID uuid.UUID, token string, platform model.Platform, appVersion, deviceID string) error {
	row := model.PushToken{
		UserID:     userID,
		Token:      token,
		Platform:   platform,
		AppVersion: appVersion,
		DeviceID:   deviceID,
		IsValid:    true,
		LastSeen:   time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen":     time.Now(),
			"platform":      platform,
			"app_version":   appVersion,
			"device_id":     deviceID,
			"is_valid":      true,
			"failure_count": 0,
			"updated_at":    time.Now(),
		}),
	}).Create(&row).Error
}

// Delete removes a single token registration
func (r *TokenRepository) Delete(userID uuid.UUID, token string) (int64, error) {
	res := r.db.Where("user_id = ? AND token = ?", userID, token).Delete(&model.PushToken{})
	return res.RowsAffected, res.Error
}

// DeleteAll removes every token for a user (logout / opt-out)
func (r *TokenRepository) DeleteAll(userID uuid.UUID) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&model.PushToken{})
	return res.RowsAffected, res.Error
}

// MarkInvalid clears is_valid for every registration of the token and
// increments its failure count. Idempotent; repeated calls only grow the
// count. Returns false when no such token exists.
func (r *TokenRepository) MarkInvalid(token, reason string) (bool, error) {
	res := r.db.Model(&model.PushToken{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"is_valid":            false,
			"failure_count":       gorm.Expr("failure_count + 1"),
			"last_failure_reason": reason,
			"last_failed_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ValidTokensForUsers returns the sendable tokens for a set of users
func (r *TokenRepository) ValidTokensForUsers(userIDs []uuid.UUID) ([]model.PushToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []model.PushToken
	err := r.db.
		Where("user_id IN ? AND is_valid = ? AND failure_count < ?", userIDs, true, model.MaxTokenFailures).
		Find(&tokens).Error
	return tokens, err
}

// ValidTokensForCity returns sendable tokens of users in a city, for
// city-scoped alert fan-out
func (r *TokenRepository) ValidTokensForCity(cityID uuid.UUID, limit int) ([]model.PushToken, error) {
	var tokens []model.PushToken
	err := r.db.Model(&model.PushToken{}).
		Joins("JOIN users ON users.id = push_tokens.user_id").
		Where("users.city_id = ? AND push_tokens.is_valid = ? AND push_tokens.failure_count < ?",
			cityID, true, model.MaxTokenFailures).
		Limit(limit).
		Find(&tokens).Error
	return tokens, err
}

// UpdatePreferences replaces the per-token category preferences.
// Returns false when the registration does not exist.
func (r *TokenRepository) UpdatePreferences(userID uuid.UUID, token string, prefs *model.PushPreferences) (bool, error) {
	res := r.db.Model(&model.PushToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Update("preferences", prefs)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
