// Package config loads, validates, and hot-reloads the service configuration
// from a JSON or YAML file.
package config

import (
	"fmt"
	"strings"
)

// Config is the on-disk configuration. All duration fields are Go duration
// strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Backup   BackupConfig   `json:"backup,omitempty"`
}

type ServerConfig struct {
	Address           string `json:"address"`
	ReadHeaderTimeout string `json:"read_header_timeout,omitempty"`
	ShutdownTimeout   string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects and configures the event store driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./calendard.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// QueueConfig controls the task dispatcher and the descriptors it builds.
type QueueConfig struct {
	CallbackURL    string `json:"callback_url"`
	Principal      string `json:"principal,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type BackupConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// Validate checks cross-field consistency. It runs on load and before any
// hot-reload commit.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Queue.CallbackURL) == "" {
		return fmt.Errorf("queue.callback_url is required")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "memory":
	case "postgres", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}

	if cfg.Notifier.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("notifier.enabled requires telegram.token")
		}
		if cfg.Telegram.ChatID == 0 {
			return fmt.Errorf("notifier.enabled requires telegram.chat_id")
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"queue.retry_base", cfg.Queue.RetryBase},
		{"queue.retry_max_delay", cfg.Queue.RetryMaxDelay},
		{"queue.request_timeout", cfg.Queue.RequestTimeout},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay},
		{"backup.timeout", cfg.Backup.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
