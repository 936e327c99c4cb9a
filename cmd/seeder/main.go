package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pawtrol-app/pawtrol-api/internal/config"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// Load config
	cfg := config.Load()

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	// Common password for all users
	password := "password123"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	// Two demo cities so city-scoped alerts have something to fan out to
	cityA := uuid.New()
	cityB := uuid.New()

	log.Println("🌱 Seeding 10 users with push tokens...")

	for i := 1; i <= 10; i++ {
		email := fmt.Sprintf("user%d@pawtrol.local", i)

		// Check if exists
		var existing model.User
		if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
			continue
		}

		city := cityA
		if i%2 == 0 {
			city = cityB
		}

		user := model.User{
			ID:       uuid.New(),
			Name:     fmt.Sprintf("User Number %d", i),
			Email:    email,
			Password: string(hashedPassword),
			CityID:   &city,
		}

		if err := db.Create(&user).Error; err != nil {
			log.Printf("❌ Failed to create user %s: %v", email, err)
			continue
		}
		log.Printf("✅ Created user: %s | Pass: %s", email, password)

		seedTokens(db, user, i)
	}

	log.Println("🎉 Seeding completed!")
}

// seedTokens gives each user one or two fake gateway tokens; every third
// user opts out of marketing so preference filtering is visible in demos
func seedTokens(db *gorm.DB, user model.User, i int) {
	optOut := false
	var prefs *model.PushPreferences
	if i%3 == 0 {
		prefs = &model.PushPreferences{Marketing: &optOut}
	}

	platforms := []model.Platform{model.PlatformAndroid}
	if i%2 == 0 {
		platforms = append(platforms, model.PlatformIOS)
	}

	for n, platform := range platforms {
		token := model.PushToken{
			UserID:      user.ID,
			Token:       fmt.Sprintf("ExponentPushToken[seed-%d-%d]", i, n),
			Platform:    platform,
			AppVersion:  "1.0.0",
			DeviceID:    fmt.Sprintf("seed-device-%d-%d", i, n),
			IsValid:     true,
			Preferences: prefs,
			LastSeen:    time.Now(),
		}
		if err := db.Create(&token).Error; err != nil {
			log.Printf("❌ Failed to create token for %s: %v", user.Email, err)
		}
	}
}
