// Package config provides configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all runtime settings for the service.
type Config struct {
	// BotToken authenticates outbound Telegram delivery.
	BotToken string
	// UpstreamToken authenticates calls to the race-manager API.
	UpstreamToken string
	// UpstreamLang is the language segment used in upstream URLs.
	UpstreamLang string

	// AdminIDs are the operators' chat ids; they receive scheduler failure
	// alerts.
	AdminIDs map[int64]bool
	// APIToken guards the admin HTTP API; empty disables the API.
	APIToken string
	// APIAddr is the listen address of the admin HTTP API.
	APIAddr string

	// DataDir holds the durable JSON state files and backups.
	DataDir string
	// LogFile is the rotating log target; empty logs to stderr only.
	LogFile string
}

// Load reads configuration from the environment. BotToken and UpstreamToken
// are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		UpstreamToken: os.Getenv("GPRO_API_TOKEN"),
		UpstreamLang:  envOr("GPRO_LANG", "gb"),
		APIToken:      os.Getenv("ADMIN_API_TOKEN"),
		APIAddr:       envOr("API_ADDR", ":8090"),
		DataDir:       envOr("DATA_DIR", "data"),
		LogFile:       os.Getenv("LOG_FILE"),
		AdminIDs:      make(map[int64]bool),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if cfg.UpstreamToken == "" {
		return nil, fmt.Errorf("GPRO_API_TOKEN is not set")
	}

	if raw := os.Getenv("ADMIN_USER_ID"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("ADMIN_USER_ID: invalid id %q", part)
			}
			cfg.AdminIDs[id] = true
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// CalendarFile is the durable calendar path.
func (c *Config) CalendarFile() string { return filepath.Join(c.DataDir, "race_calendar.json") }

// UsersFile is the durable user-preferences path.
func (c *Config) UsersFile() string { return filepath.Join(c.DataDir, "users_data.json") }

// HistoryFile is the durable notification-history path.
func (c *Config) HistoryFile() string { return filepath.Join(c.DataDir, "notify_history.json") }

// BackupDir is where state backups are written.
func (c *Config) BackupDir() string { return filepath.Join(c.DataDir, "backups") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
