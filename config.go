package main

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// config is the server configuration, read from the environment (optionally
// seeded from a .env file).
type config struct {
	DBURL           string
	ListenAddr      string
	RedisURL        string
	ReportCacheTTL  time.Duration
	LoginRatePerMin int
	LoginBurst      int
	LogFormat       string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
}

// loadConfig loads .env when present and reads the environment.
func loadConfig() (config, error) {
	// A missing .env is fine; deployments set real environment variables.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	return configFrom(v)
}

// configFrom applies defaults and validates required keys.
func configFrom(v *viper.Viper) (config, error) {
	v.SetDefault("LISTEN_ADDR", "localhost:3000")
	v.SetDefault("REPORT_CACHE_TTL", "5m")
	v.SetDefault("LOGIN_RATE_PER_MIN", 10)
	v.SetDefault("LOGIN_BURST", 5)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")

	cfg := config{
		DBURL:           v.GetString("DB_URL"),
		ListenAddr:      v.GetString("LISTEN_ADDR"),
		RedisURL:        v.GetString("REDIS_URL"),
		ReportCacheTTL:  v.GetDuration("REPORT_CACHE_TTL"),
		LoginRatePerMin: v.GetInt("LOGIN_RATE_PER_MIN"),
		LoginBurst:      v.GetInt("LOGIN_BURST"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:   v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:     v.GetString("OPENAI_MODEL"),
	}

	if cfg.DBURL == "" {
		return cfg, errors.New("DB_URL is required")
	}
	if cfg.ReportCacheTTL <= 0 {
		return cfg, errors.New("REPORT_CACHE_TTL must be a positive duration")
	}
	if cfg.LoginRatePerMin <= 0 || cfg.LoginBurst <= 0 {
		return cfg, errors.New("LOGIN_RATE_PER_MIN and LOGIN_BURST must be positive")
	}
	return cfg, nil
}
