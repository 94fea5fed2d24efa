package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"BILLING_APP_NAME":           os.Getenv("BILLING_APP_NAME"),
		"BILLING_APP_ENV":            os.Getenv("BILLING_APP_ENV"),
		"BILLING_APP_PORT":           os.Getenv("BILLING_APP_PORT"),
		"BILLING_DATABASE_HOST":      os.Getenv("BILLING_DATABASE_HOST"),
		"BILLING_DATABASE_PORT":      os.Getenv("BILLING_DATABASE_PORT"),
		"BILLING_DATABASE_PASSWORD":  os.Getenv("BILLING_DATABASE_PASSWORD"),
		"BILLING_DATABASE_SSLMODE":   os.Getenv("BILLING_DATABASE_SSLMODE"),
		"BILLING_REDIS_HOST":         os.Getenv("BILLING_REDIS_HOST"),
		"BILLING_LEDGER_MAX_RETRIES": os.Getenv("BILLING_LEDGER_MAX_RETRIES"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "billing", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 6379, cfg.Redis.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 3, cfg.Ledger.MaxRetries)
		assert.Equal(t, 24*time.Hour, cfg.Ledger.IdempotencyTTL)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	})

	t.Run("environment variables override defaults", func(t *testing.T) {
		clearEnv()
		os.Setenv("BILLING_APP_NAME", "billing-test")
		os.Setenv("BILLING_DATABASE_HOST", "db.internal")
		os.Setenv("BILLING_LEDGER_MAX_RETRIES", "5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing-test", cfg.App.Name)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	})

	t.Run("production requires database password", func(t *testing.T) {
		clearEnv()
		os.Setenv("BILLING_APP_ENV", "production")
		os.Setenv("BILLING_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required")
	})

	t.Run("production rejects sslmode disable", func(t *testing.T) {
		clearEnv()
		os.Setenv("BILLING_APP_ENV", "production")
		os.Setenv("BILLING_DATABASE_PASSWORD", "secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "p@ss/word",
		DBName:   "billing",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "localhost:5432")
	assert.Contains(t, dsn, "/billing")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.NotContains(t, dsn, "p@ss/word", "password must be escaped")
}
