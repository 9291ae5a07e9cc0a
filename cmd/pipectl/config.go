package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all pipectl configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ServerURL       string `json:"server_url"`
	DBPath          string `json:"db_path"`
	CredentialsPath string `json:"credentials_path"`
	LogLevel        string `json:"log_level"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

func defaultConfig() Config {
	dir := pipectlDir()
	return Config{
		ServerURL:       "http://127.0.0.1:12555",
		DBPath:          filepath.Join(dir, "drafts.db"),
		CredentialsPath: filepath.Join(dir, "credentials.json"),
		LogLevel:        "info",
		TimeoutSeconds:  30,
	}
}

func pipectlDir() string {
	if v := os.Getenv("PIPECTL_CONFIG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pipectl"
	}
	return filepath.Join(home, ".pipectl")
}

func settingsPath() string {
	return filepath.Join(pipectlDir(), "settings.json")
}

// loadConfig layers defaults, the settings file, and PIPECTL_* env vars.
// An explicit path comes from --config; empty means the default location.
func loadConfig(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = settingsPath()
	}

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("PIPECTL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PIPECTL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PIPECTL_CREDENTIALS_PATH"); v != "" {
		cfg.CredentialsPath = v
	}
	if v := os.Getenv("PIPECTL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PIPECTL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}

	return cfg
}

// level maps the configured log level onto slog; unknown values fall back
// to info.
func (c Config) level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
