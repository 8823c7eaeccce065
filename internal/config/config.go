// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all env configuration vars for the WeddingKiTyaari API.
type Config struct {
	JWTSecret   string
	DatabaseURL string // scheme picks the backend: postgres://, mongodb://, sqlite://
	FrontendURL string
	RedisURL    string // optional; empty disables login rate limiting
	Port        string
	LogLevel    slog.Level

	// AllowedOrigins for CORS. Entries may contain one wildcard, e.g. https://*.vercel.app.
	// Defaults to FrontendURL alone.
	AllowedOrigins []string

	MongoDatabase string

	// Per-call bounds. Defaults: store 5s, AI 30s.
	StoreTimeout time.Duration
	AITimeout    time.Duration

	// Google OAuth. All three or none; GoogleEnabled reports which.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// Gemini assistant. Empty key disables /api/ai/chat.
	GeminiAPIKey string
	GeminiModel  string

	// CookieSecure marks the OAuth state cookie Secure with the __Host- prefix.
	// Default true; set COOKIE_SECURE=false for plain-HTTP local development.
	CookieSecure bool

	// Rate limit policy for login attempts per email.
	// Defaults: max=10, window=10m, lockout=15m.
	RateLoginEmailMax     int
	RateLoginEmailWindow  time.Duration
	RateLoginEmailLockout time.Duration
}

// minSecretLength is the shortest JWT_SECRET accepted for HS256.
const minSecretLength = 32

// LoadEnvFile loads .env into the process environment when present.
// Variables already set win; a missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (JWT_SECRET, DATABASE_URL, FRONTEND_URL) are missing.
func LoadConfig() (*Config, error) {
	// Create config obj
	cfg := &Config{}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}

	// MONGODB_URI is accepted for deployments that predate DATABASE_URL.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("MONGODB_URI")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.FrontendURL = strings.TrimRight(os.Getenv("FRONTEND_URL"), "/")
	if cfg.FrontendURL == "" {
		return nil, fmt.Errorf("FRONTEND_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Attempt to get port num, default to 3001
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "3001"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	cfg.MongoDatabase = os.Getenv("MONGODB_DATABASE")
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "weddingkityaari"
	}

	cfg.StoreTimeout = envDuration("STORE_TIMEOUT", 5*time.Second)
	cfg.AITimeout = envDuration("AI_TIMEOUT", 30*time.Second)

	// Placeholder values copied from .env.example count as unset.
	cfg.GoogleClientID = envUnlessPlaceholder("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = envUnlessPlaceholder("GOOGLE_CLIENT_SECRET")
	cfg.GoogleCallbackURL = envUnlessPlaceholder("GOOGLE_CALLBACK_URL")

	cfg.GeminiAPIKey = envUnlessPlaceholder("GEMINI_API_KEY")
	cfg.GeminiModel = os.Getenv("GEMINI_MODEL")

	// Default true -- only explicit "false" disables.
	cfg.CookieSecure = os.Getenv("COOKIE_SECURE") != "false"

	// Rate limit: login by email. All three fields required -- if any are missing or invalid,
	// fall back to the default so a misconfigured env doesn't silently disable rate limiting.
	cfg.RateLoginEmailMax = envInt("RATE_LOGIN_EMAIL_MAX", 10)
	cfg.RateLoginEmailWindow = envDuration("RATE_LOGIN_EMAIL_WINDOW", 10*time.Minute)
	cfg.RateLoginEmailLockout = envDuration("RATE_LOGIN_EMAIL_LOCKOUT", 15*time.Minute)

	return cfg, nil
}

// GoogleEnabled reports whether all three Google OAuth settings are present.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleCallbackURL != ""
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envUnlessPlaceholder returns the env var, or "" when it still holds a template value.
func envUnlessPlaceholder(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "your_") || strings.HasPrefix(lower, "your-") || strings.Contains(lower, "placeholder") {
		return ""
	}
	return v
}

// splitList parses a comma-separated list, dropping blanks and trailing slashes.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
