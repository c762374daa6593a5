package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	JWTSecret    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration

	MigrationsDir string
	CORSOrigin    string

	// AppBaseURL is the dashboard frontend, used in account email links.
	AppBaseURL string

	// Development identity used when a request carries no valid bearer token.
	DevUserName  string
	DevUserEmail string

	MeiliURL       string
	MeiliMasterKey string

	// SMTP - empty host disables outbound mail
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Redis - optional, refresh sessions fall back to Postgres when unset
	RedisURL string
}

// Load reads configuration from the environment. Secrets have no baked-in
// fallbacks: a missing DATABASE_URL or LIFEOS_JWT_SECRET is a startup error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:          getenv("API_ADDR", ":8790"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("LIFEOS_JWT_SECRET"),
		AccessTTL:     time.Duration(getenvInt("LIFEOS_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:    time.Duration(getenvInt("LIFEOS_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		StoreTimeout:  time.Duration(getenvInt("LIFEOS_STORE_TIMEOUT_SECONDS", 10)) * time.Second,
		MigrationsDir: getenv("LIFEOS_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("LIFEOS_CORS_ORIGIN", "*"),
		AppBaseURL:    getenv("LIFEOS_APP_URL", "http://localhost:3000"),
		DevUserName:   getenv("LIFEOS_DEV_USER", "dev"),
		DevUserEmail:  getenv("LIFEOS_DEV_USER_EMAIL", "dev@local.lifeos.dev"),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Life OS"),

		RedisURL: getenv("REDIS_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("LIFEOS_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
