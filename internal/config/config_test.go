package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"API_PORT", "ENVIRONMENT", "CACHE_TTL", "DIRECTORY_RETRY_MAX", "PLAN_PRICE_6MONTHS", "DIRECTORY_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.DirectoryRetryMax)
	assert.True(t, cfg.PlanPrice6Months.IsZero())
	assert.Empty(t, cfg.DirectoryURL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("PLAN_PRICE_12MONTHS", "199.99")
	t.Setenv("SMTP_USE_TLS", "true")
	t.Setenv("DIRECTORY_RETRY_MAX", "5")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, "199.99", cfg.PlanPrice12Months.String())
	assert.True(t, cfg.SMTPUseTLS)
	assert.Equal(t, 5, cfg.DirectoryRetryMax)
}

func TestInvalidPriceFallsBackToZero(t *testing.T) {
	t.Setenv("PLAN_PRICE_6MONTHS", "cheap")
	assert.True(t, Load().PlanPrice6Months.IsZero())
}
