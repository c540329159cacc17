package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port int

	// StorePath is the JSON file backing the credential cache. Ignored when
	// DatabaseURL selects the Postgres store.
	StorePath   string
	DatabaseURL string

	// BackendURL is the admin backend exposing the channel directory.
	BackendURL   string
	BackendToken string

	JWTSecret string

	// Google OAuth client credentials. When both are set the service
	// exchanges and refreshes tokens directly against Google instead of
	// delegating to the backend.
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string

	ConnectTimeout    time.Duration
	TokenExpiryLeeway time.Duration
}

// Load reads configuration from environment variables and validates required fields.
func Load() (Config, error) {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return Config{}, fmt.Errorf("parse PORT: %w", err)
	}

	connectTimeout, err := getEnvDuration("CONNECT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("parse CONNECT_TIMEOUT: %w", err)
	}

	leeway, err := getEnvDuration("TOKEN_EXPIRY_LEEWAY", 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("parse TOKEN_EXPIRY_LEEWAY: %w", err)
	}

	cfg := Config{
		Port:               port,
		StorePath:          getEnv("STORE_PATH", "yt_channels_tokens.json"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		BackendURL:         getEnv("BACKEND_URL", ""),
		BackendToken:       getEnv("BACKEND_TOKEN", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:   getEnv("OAUTH_REDIRECT_URL", ""),
		ConnectTimeout:     connectTimeout,
		TokenExpiryLeeway:  leeway,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DirectGoogle reports whether this instance holds its own OAuth client
// credentials.
func (c Config) DirectGoogle() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.DirectGoogle() && c.OAuthRedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL is required when Google credentials are set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
