package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("PORT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("ORDER_SWEEP_INTERVAL", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres://postgres:postgres@db:5432/opay", cfg.DatabaseURL)
	assert.Equal(t, time.Minute, cfg.OrderSweepInterval)
	assert.Contains(t, cfg.CORSOrigins, "https://opay.dz")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@h:1/x")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SCRAPE_CACHE_TTL", "90m")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "")

	cfg := Load()
	assert.Equal(t, "postgres://u:p@h:1/x", cfg.DatabaseURL)
	assert.Equal(t, int64(-1001234), cfg.TelegramChatID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Minute, cfg.ScrapeCacheTTL)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}
