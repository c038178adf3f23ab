package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFrom_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("DB_URL", "postgres://localhost/fitness")

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 10, cfg.LoginRatePerMin)
	assert.Equal(t, 5, cfg.LoginBurst)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAIBaseURL)
}

func TestConfigFrom_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("DB_URL", "postgres://localhost/fitness")
	v.Set("LISTEN_ADDR", ":8080")
	v.Set("REDIS_URL", "redis://localhost:6379/0")
	v.Set("REPORT_CACHE_TTL", "90s")
	v.Set("LOGIN_RATE_PER_MIN", 30)

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, 30, cfg.LoginRatePerMin)
}

func TestConfigFrom_FromEnvironment(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/fitness")
	t.Setenv("LOG_FORMAT", "console")

	v := viper.New()
	v.AutomaticEnv()
	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/fitness", cfg.DBURL)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestConfigFrom_Invalid(t *testing.T) {
	_, err := configFrom(viper.New())
	assert.ErrorContains(t, err, "DB_URL")

	v := viper.New()
	v.Set("DB_URL", "postgres://localhost/fitness")
	v.Set("REPORT_CACHE_TTL", "0s")
	_, err = configFrom(v)
	assert.ErrorContains(t, err, "REPORT_CACHE_TTL")

	v = viper.New()
	v.Set("DB_URL", "postgres://localhost/fitness")
	v.Set("LOGIN_RATE_PER_MIN", 0)
	_, err = configFrom(v)
	assert.ErrorContains(t, err, "LOGIN_RATE_PER_MIN")
}
