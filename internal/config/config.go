// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the API binary needs at startup.
type Config struct {
	Addr  string
	PGDSN string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	OTPTTL             time.Duration
	Issuer             string

	CookieDomain string
	CookieSecure bool

	RateLimitBurst     int
	RateLimitPerSecond int
	MaxBodyBytes       int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:               envOr("CMS_ADDR", ":8080"),
		PGDSN:              os.Getenv("CMS_PG_DSN"),
		AccessTokenSecret:  os.Getenv("CMS_ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("CMS_REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     envDurationOr("CMS_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:    envDurationOr("CMS_REFRESH_TOKEN_TTL", 24*time.Hour),
		OTPTTL:             envDurationOr("CMS_OTP_TTL", 10*time.Minute),
		Issuer:             envOr("CMS_TOKEN_ISSUER", "sitecraft-cms"),
		CookieDomain:       os.Getenv("CMS_COOKIE_DOMAIN"),
		CookieSecure:       envBoolOr("CMS_COOKIE_SECURE", true),
		RateLimitBurst:     envIntOr("CMS_RATE_BURST", 20),
		RateLimitPerSecond: envIntOr("CMS_RATE_PER_SECOND", 10),
		MaxBodyBytes:       int64(envIntOr("CMS_MAX_BODY_BYTES", 1<<20)),
	}

	if strings.TrimSpace(cfg.AccessTokenSecret) == "" {
		return Config{}, errors.New("config: CMS_ACCESS_TOKEN_SECRET is required")
	}
	if strings.TrimSpace(cfg.RefreshTokenSecret) == "" {
		return Config{}, errors.New("config: CMS_REFRESH_TOKEN_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
