// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Source formats.
const (
	FormatHTML = "html"
	FormatFeed = "feed"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	AdminChatID      int64
	DatabasePath     string
	LogLevel         string
	LogFile          string

	SourceURL      string
	SourceFormat   string
	PollInterval   time.Duration
	ErrorCooldown  time.Duration
	MaxPostAge     time.Duration
	FetchTimeout   time.Duration
	MaxItems       int
	SeenCapacity   int
	CategoriesFile string
}

// LoadDotEnv populates the environment from the given files, or ".env" when
// none are given. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rawAdmin := strings.TrimSpace(os.Getenv("ADMIN_CHAT_ID"))
	if rawAdmin == "" {
		return nil, fmt.Errorf("ADMIN_CHAT_ID is required")
	}
	adminID, err := strconv.ParseInt(rawAdmin, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_CHAT_ID %q: %w", rawAdmin, err)
	}

	format := strings.ToLower(envOrDefault("SOURCE_FORMAT", FormatHTML))
	if format != FormatHTML && format != FormatFeed {
		return nil, fmt.Errorf("SOURCE_FORMAT must be %q or %q, got %q", FormatHTML, FormatFeed, format)
	}

	cfg := &Config{
		TelegramBotToken: token,
		AdminChatID:      adminID,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		SourceURL:        envOrDefault("SOURCE_URL", "https://khamsat.com/community/requests"),
		SourceFormat:     format,
		CategoriesFile:   os.Getenv("CATEGORIES_FILE"),
	}

	ints := []struct {
		key  string
		def  int
		unit time.Duration
		dst  *time.Duration
		n    *int
	}{
		{key: "POLL_INTERVAL_SECONDS", def: 30, unit: time.Second, dst: &cfg.PollInterval},
		{key: "ERROR_COOLDOWN_SECONDS", def: 15, unit: time.Second, dst: &cfg.ErrorCooldown},
		{key: "MAX_POST_AGE_MINUTES", def: 3, unit: time.Minute, dst: &cfg.MaxPostAge},
		{key: "FETCH_TIMEOUT_SECONDS", def: 10, unit: time.Second, dst: &cfg.FetchTimeout},
		{key: "MAX_ITEMS", def: 10, n: &cfg.MaxItems},
		{key: "SEEN_CAPACITY", def: 100, n: &cfg.SeenCapacity},
	}
	for _, v := range ints {
		n, err := positiveInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		if v.dst != nil {
			*v.dst = time.Duration(n) * v.unit
		} else {
			*v.n = n
		}
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
