package notification

import "github.com/pawtrol-app/pawtrol-api/internal/model"

// Category classifies a notification for preference-based filtering
type Category string

const (
	CategorySystem    Category = "system"
	CategoryMarketing Category = "marketing"
)

// Allows decides whether a token's preferences permit a category.
// Tokens with no recorded preference fail open: older registrations
// predate the setting and must not silently lose important alerts.
// Every token is evaluated independently, with no side effects.
func Allows(prefs *model.PushPreferences, category Category) bool {
	if prefs == nil {
		return true
	}
	switch category {
	case CategoryMarketing:
		return prefs.Marketing == nil || *prefs.Marketing
	case CategorySystem:
		return prefs.System == nil || *prefs.System
	default:
		return true
	}
}
