package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string

	// Backend endpoints.
	APIBaseURL string
	WSURL      string
	AuthToken  string

	// Local message cache.
	CachePath     string
	CacheKeepLast int

	// Chat engine tuning.
	PageSize        int
	ReconcileWindow time.Duration
	TypingQuiet     time.Duration

	// Logging.
	LogFile  string
	LogLevel slog.Level

	// Dev stub server.
	Host        string
	Port        int
	JWTSecret   string
	CORSOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppName: getEnv("APP_NAME", "petchat"),
		Env:     getEnv("APP_ENV", "development"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000/api"),
		WSURL:      getEnv("WS_URL", "ws://localhost:8000/ws"),
		AuthToken:  os.Getenv("AUTH_TOKEN"),

		CachePath:     getEnv("CACHE_PATH", "petchat-cache.db"),
		CacheKeepLast: getEnvAsInt("CACHE_KEEP_LAST", 50),

		PageSize:        getEnvAsInt("PAGE_SIZE", 50),
		ReconcileWindow: getEnvAsDuration("RECONCILE_WINDOW", 15*time.Second),
		TypingQuiet:     getEnvAsDuration("TYPING_QUIET", 3*time.Second),

		LogFile:  getEnv("LOG_FILE", "petchat.log"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),

		Host:      getEnv("HTTP_HOST", "0.0.0.0"),
		Port:      getEnvAsInt("HTTP_PORT", 8000),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive")
	}
	if cfg.CacheKeepLast <= 0 {
		return nil, fmt.Errorf("CACHE_KEEP_LAST must be positive")
	}
	if cfg.ReconcileWindow <= 0 {
		return nil, fmt.Errorf("RECONCILE_WINDOW must be positive")
	}
	if cfg.TypingQuiet <= 0 {
		return nil, fmt.Errorf("TYPING_QUIET must be positive")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
