package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"gorm.io/gorm"
)

func countTokens(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.PushToken{}).Count(&n).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	return n
}

func TestUpsertIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := repo.Upsert(userID, "ExponentPushToken[a]", model.PlatformIOS, "1.0.0", "dev-1"); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if n := countTokens(t, db); n != 1 {
		t.Fatalf("token rows = %d, want 1 after repeated upserts", n)
	}

	// Same token string under another user is a separate registration
	if err := repo.Upsert(uuid.New(), "ExponentPushToken[a]", model.PlatformIOS, "1.0.0", "dev-2"); err != nil {
		t.Fatalf("upsert other user: %v", err)
	}
	if n := countTokens(t, db); n != 2 {
		t.Fatalf("token rows = %d, want 2 for two users sharing a token string", n)
	}
}

func TestUpsertHealsInvalidatedToken(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	if err := repo.Upsert(userID, "ExponentPushToken[a]", model.PlatformAndroid, "1.0.0", "dev"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < model.MaxTokenFailures; i++ {
		if _, err := repo.MarkInvalid("ExponentPushToken[a]", "DeviceNotRegistered"); err != nil {
			t.Fatalf("mark invalid %d: %v", i, err)
		}
	}

	tokens, err := repo.ValidTokensForUsers([]uuid.UUID{userID})
	if err != nil {
		t.Fatalf("valid tokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("invalidated token still sendable: %+v", tokens)
	}

	// Re-registration is evidence the device holds the token again
	if err := repo.Upsert(userID, "ExponentPushToken[a]", model.PlatformAndroid, "1.1.0", "dev"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	tokens, err = repo.ValidTokensForUsers([]uuid.UUID{userID})
	if err != nil {
		t.Fatalf("valid tokens after heal: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("healed token not sendable, got %d rows", len(tokens))
	}
	if !tokens[0].IsValid || tokens[0].FailureCount != 0 {
		t.Errorf("healed token: is_valid=%v failure_count=%d, want true/0",
			tokens[0].IsValid, tokens[0].FailureCount)
	}
	if tokens[0].AppVersion != "1.1.0" {
		t.Errorf("app_version = %s, want refreshed to 1.1.0", tokens[0].AppVersion)
	}
}

func TestMarkInvalid(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	if err := repo.Upsert(userID, "ExponentPushToken[a]", model.PlatformAndroid, "1.0.0", "dev"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	updated, err := repo.MarkInvalid("ExponentPushToken[a]", "DeviceNotRegistered")
	if err != nil {
		t.Fatalf("mark invalid: %v", err)
	}
	if !updated {
		t.Error("MarkInvalid = false for an existing token")
	}

	// Repeat calls only grow the failure count
	if _, err := repo.MarkInvalid("ExponentPushToken[a]", "InvalidCredentials"); err != nil {
		t.Fatalf("second mark invalid: %v", err)
	}

	var row model.PushToken
	if err := db.Where("token = ?", "ExponentPushToken[a]").First(&row).Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	if row.IsValid {
		t.Error("token still valid after MarkInvalid")
	}
	if row.FailureCount != 2 {
		t.Errorf("failure_count = %d, want 2", row.FailureCount)
	}
	if row.LastFailureReason != "InvalidCredentials" {
		t.Errorf("last_failure_reason = %q, want the most recent reason", row.LastFailureReason)
	}
	if row.LastFailedAt == nil {
		t.Error("last_failed_at not set")
	}

	updated, err = repo.MarkInvalid("ExponentPushToken[missing]", "whatever")
	if err != nil {
		t.Fatalf("mark invalid missing: %v", err)
	}
	if updated {
		t.Error("MarkInvalid = true for a token that does not exist")
	}
}

func TestValidTokensForUsersExcludesExhausted(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	if err := repo.Upsert(userID, "ExponentPushToken[tired]", model.PlatformAndroid, "1.0.0", "dev"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// is_valid alone does not protect a flapping token; the failure count
	// threshold excludes it even when something set is_valid back
	err := db.Model(&model.PushToken{}).
		Where("token = ?", "ExponentPushToken[tired]").
		Updates(map[string]interface{}{"is_valid": true, "failure_count": model.MaxTokenFailures}).Error
	if err != nil {
		t.Fatalf("set failure count: %v", err)
	}

	tokens, err := repo.ValidTokensForUsers([]uuid.UUID{userID})
	if err != nil {
		t.Fatalf("valid tokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("exhausted token still sendable: %+v", tokens)
	}

	if tokens, err = repo.ValidTokensForUsers(nil); err != nil || tokens != nil {
		t.Errorf("empty user set: tokens=%v err=%v, want nil/nil", tokens, err)
	}
}

func TestValidTokensForCity(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	cityID := uuid.New()
	otherCity := uuid.New()

	local := model.User{Name: "Local", Email: "local@pawtrol.local", CityID: &cityID}
	away := model.User{Name: "Away", Email: "away@pawtrol.local", CityID: &otherCity}
	nowhere := model.User{Name: "Nowhere", Email: "nowhere@pawtrol.local"}
	for _, u := range []*model.User{&local, &away, &nowhere} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	for i, u := range []model.User{local, away, nowhere} {
		token := "ExponentPushToken[city-" + string(rune('a'+i)) + "]"
		if err := repo.Upsert(u.ID, token, model.PlatformAndroid, "1.0.0", "dev"); err != nil {
			t.Fatalf("upsert for %s: %v", u.Email, err)
		}
	}

	tokens, err := repo.ValidTokensForCity(cityID, 100)
	if err != nil {
		t.Fatalf("tokens for city: %v", err)
	}
	if len(tokens) != 1 || tokens[0].UserID != local.ID {
		t.Fatalf("city fan-out got %+v, want only the local user's token", tokens)
	}

	// Invalidated tokens drop out of the fan-out too
	if _, err := repo.MarkInvalid(tokens[0].Token, "DeviceNotRegistered"); err != nil {
		t.Fatalf("mark invalid: %v", err)
	}
	tokens, err = repo.ValidTokensForCity(cityID, 100)
	if err != nil {
		t.Fatalf("tokens for city: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("invalid token still in city fan-out: %+v", tokens)
	}
}

func TestUpdatePreferences(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	if err := repo.Upsert(userID, "ExponentPushToken[a]", model.PlatformIOS, "1.0.0", "dev"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	optOut := false
	updated, err := repo.UpdatePreferences(userID, "ExponentPushToken[a]", &model.PushPreferences{Marketing: &optOut})
	if err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	if !updated {
		t.Error("UpdatePreferences = false for an existing registration")
	}

	var row model.PushToken
	if err := db.Where("token = ?", "ExponentPushToken[a]").First(&row).Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	if row.Preferences == nil || row.Preferences.Marketing == nil || *row.Preferences.Marketing {
		t.Errorf("preferences = %+v, want marketing opted out", row.Preferences)
	}
	if row.Preferences.System != nil {
		t.Errorf("system preference = %v, want untouched nil", *row.Preferences.System)
	}

	updated, err = repo.UpdatePreferences(userID, "ExponentPushToken[missing]", nil)
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if updated {
		t.Error("UpdatePreferences = true for a registration that does not exist")
	}
}

func TestDeleteTokens(t *testing.T) {
	db := openTestDB(t)
	repo := NewTokenRepository(db)
	userID := uuid.New()

	for _, token := range []string{"ExponentPushToken[a]", "ExponentPushToken[b]"} {
		if err := repo.Upsert(userID, token, model.PlatformAndroid, "1.0.0", "dev"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := repo.Delete(userID, "ExponentPushToken[a]")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("delete removed %d rows, want 1", n)
	}

	n, err = repo.DeleteAll(userID)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 1 {
		t.Errorf("delete all removed %d rows, want the remaining 1", n)
	}
	if count := countTokens(t, db); count != 0 {
		t.Errorf("token rows = %d, want 0", count)
	}
}
