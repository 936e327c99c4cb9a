package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawtrol-app/pawtrol-api/internal/config"
	"github.com/pawtrol-app/pawtrol-api/internal/handler"
	"github.com/pawtrol-app/pawtrol-api/internal/middleware"
	"github.com/pawtrol-app/pawtrol-api/internal/model"
	"github.com/pawtrol-app/pawtrol-api/internal/notification"
	"github.com/pawtrol-app/pawtrol-api/internal/repository"
	"github.com/pawtrol-app/pawtrol-api/internal/service"
	"github.com/pawtrol-app/pawtrol-api/migrations"
	"github.com/pawtrol-app/pawtrol-api/pkg/auth"
	"github.com/pawtrol-app/pawtrol-api/pkg/expo"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           Pawtrol API
// @version         1.0
// @description     Animal-welfare platform API: sighting alerts, adoption workflow and the push-notification delivery pipeline.

// @contact.name   API Support
// @contact.email  support@pawtrol.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.App.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Info().Str("env", cfg.App.Env).Msg("🚀 Starting Pawtrol API Server")

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to database")
	}
	log.Info().Msg("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Warn().Err(err).Msg("⚠️  Migration warning, falling back to GORM AutoMigrate")
		if err := db.AutoMigrate(
			&model.User{},
			&model.PushToken{},
			&model.PushTicket{},
			&model.NotificationRecord{},
		); err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to migrate database")
		}
	}
	log.Info().Msg("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
	}
	log.Info().Msg("✅ Connected to Redis")

	// ==================== Initialize Layers ====================
	// JWT Manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	ticketRepo := repository.NewTicketRepository(db)

	// History schema is resolved exactly once, before serving traffic.
	// A missing table is a configuration error, not something to degrade
	// around silently at runtime.
	historySchema, err := repository.ResolveHistorySchema(db, cfg.History.Table, cfg.History.SchemaVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Notification history schema unavailable")
	}
	historyRepo := repository.NewHistoryRepository(db, historySchema)
	log.Info().
		Str("table", historySchema.Table).
		Str("version", historySchema.Version).
		Msg("✅ Notification history schema resolved")

	// Push gateway
	gateway := expo.NewClient(expo.Config{
		BaseURL:     cfg.Push.GatewayURL,
		AccessToken: cfg.Push.AccessToken,
		RatePerSec:  cfg.Push.RatePerSec,
	})

	// Services
	authService := service.NewAuthService(userRepo, tokenRepo, jwtManager, rdb)
	dispatcher := notification.NewDispatcher(tokenRepo, ticketRepo, gateway, log.With().Str("component", "dispatcher").Logger())
	receiptProcessor := notification.NewReceiptProcessor(ticketRepo, tokenRepo, gateway, cfg.Worker.ReceiptBatch,
		log.With().Str("component", "receipts").Logger())

	// ==================== Receipt Worker ====================
	// Receipts lag sends by design; reconciliation runs on its own
	// schedule, independent from the request path.
	worker := cron.New()
	if _, err := worker.AddFunc(cfg.Worker.ReceiptSchedule, func() {
		stats, err := receiptProcessor.Run(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("⚠️  Receipt run aborted")
			return
		}
		if stats.Fetched > 0 {
			log.Info().
				Int("fetched", stats.Fetched).
				Int("resolved", stats.Resolved).
				Int("invalidated", stats.Invalidated).
				Int("transient", stats.Transient).
				Msg("🧾 Receipt run completed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Worker.ReceiptSchedule).Msg("❌ Invalid receipt schedule")
	}
	worker.Start()
	defer worker.Stop()
	log.Info().Str("schedule", cfg.Worker.ReceiptSchedule).Msg("✅ Receipt worker scheduled")

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	deviceHandler := handler.NewDeviceHandler(tokenRepo)
	notificationHandler := handler.NewNotificationHandler(dispatcher, tokenRepo, historyRepo,
		log.With().Str("component", "notifications").Logger())

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Swagger configuration
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "pawtrol-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		// Auth routes (public)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, rdb))
		{
			// Auth
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Devices
			protected.POST("/devices", deviceHandler.RegisterDevice)
			protected.DELETE("/devices", deviceHandler.UnregisterDevice)
			protected.PUT("/devices/preferences", deviceHandler.UpdatePreferences)

			// Notifications
			protected.POST("/notifications/dispatch", notificationHandler.Dispatch)
			protected.GET("/notifications", notificationHandler.ListNotifications)
			protected.POST("/notifications/:id/read", notificationHandler.MarkNotificationRead)
		}
	}

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	log.Info().Msgf("🌐 Pawtrol API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Info().Msgf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("❌ Server forced to shutdown")
	}

	log.Info().Msg("✅ Server exited gracefully")
}
