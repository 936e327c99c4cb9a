package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	CORS    CORSConfig
	Push    PushConfig
	Worker  WorkerConfig
	History HistoryConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

// PushConfig configures the push gateway client
type PushConfig struct {
	GatewayURL  string  // base URL of the push gateway
	AccessToken string  // optional gateway access token
	RatePerSec  float64 // outbound request rate limit
}

// WorkerConfig configures the receipt reconciliation worker
type WorkerConfig struct {
	ReceiptSchedule string // cron expression
	ReceiptBatch    int    // max pending tickets fetched per run
}

// HistoryConfig describes the notification-history table owned by a
// separate deployment artifact. The schema version is resolved once at
// startup; "auto" probes the live database a single time.
type HistoryConfig struct {
	Table         string
	SchemaVersion string // "v1" | "v2" | "auto"
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "pawtrol"),
			Password: getEnv("DB_PASSWORD", "pawtrol"),
			Name:     getEnv("DB_NAME", "pawtrol"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: jwtExpiry,
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		},
		Push: PushConfig{
			GatewayURL:  getEnv("PUSH_GATEWAY_URL", "https://exp.host"),
			AccessToken: getEnv("PUSH_ACCESS_TOKEN", ""),
			RatePerSec:  getEnvFloat("PUSH_RATE_PER_SEC", 5),
		},
		Worker: WorkerConfig{
			ReceiptSchedule: getEnv("RECEIPT_SCHEDULE", "*/15 * * * *"),
			ReceiptBatch:    getEnvInt("RECEIPT_BATCH", 1000),
		},
		History: HistoryConfig{
			Table:         getEnv("HISTORY_TABLE", "notifications"),
			SchemaVersion: getEnv("HISTORY_SCHEMA_VERSION", "auto"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
