package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the application configuration
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string

	// AdminBootstrapSecret enables POST /auth/bootstrap-admin when set.
	AdminBootstrapSecret string

	RedisAddr string
	NATSURL   string

	TelegramToken       string
	TelegramChatID      int64
	TelegramAdminChatID int64
	TelegramAPIURL      string

	ScraperAPIKey   string
	ScraperAPIURL   string
	ScrapeCachePath string
	ScrapeCacheTTL  time.Duration
	CORSOrigins     []string

	StorageDir         string
	OrderSweepInterval time.Duration
}

// Load creates a new configuration from the environment, reading .env first when present
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using environment and defaults")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: databaseURL(),
		JWTSecret:   getEnv("JWT_SECRET", "change-me"),
		TokenTTL:    getDuration("TOKEN_TTL", 72*time.Hour),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AdminBootstrapSecret: os.Getenv("ADMIN_BOOTSTRAP_SECRET"),

		RedisAddr: redisAddr(),
		NATSURL:   os.Getenv("NATS_URL"),

		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:      getInt64("TELEGRAM_CHAT_ID", 0),
		TelegramAdminChatID: getInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
		TelegramAPIURL:      getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		ScraperAPIKey:   os.Getenv("SCRAPER_API_KEY"),
		ScraperAPIURL:   getEnv("SCRAPER_API_URL", "https://api.scraperapi.com/"),
		ScrapeCachePath: getEnv("SCRAPE_CACHE_PATH", "./scrape_cache.db"),
		ScrapeCacheTTL:  getDuration("SCRAPE_CACHE_TTL", 6*time.Hour),
		CORSOrigins:     getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "https://opay.dz"}),

		StorageDir:         getEnv("STORAGE_DIR", "./storage"),
		OrderSweepInterval: getDuration("ORDER_SWEEP_INTERVAL", time.Minute),
	}
}

// databaseURL prefers DATABASE_URL and falls back to the discrete DB_* variables
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "opay"),
	)
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getEnv("REDIS_PORT", "6379")
	}
	if os.Getenv("RUN_LOCAL") == "true" {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt64(key string, defaultValue int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
