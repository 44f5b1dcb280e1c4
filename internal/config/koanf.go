// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/callsync/config.yaml",
	"/etc/callsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			PageLimit: 50,
			MaxPages:  100,
			Timeout:   30 * time.Second,
		},
		Destination: DestinationConfig{
			BaseURL:           "https://api.airtable.com/v0",
			CallsTable:        "Calls",
			CustomersTable:    "Customers",
			ChunkSize:         10,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
		},
		Fields: FieldMapping{
			CallID:         "Call ID",
			Direction:      "Direction",
			StartedAt:      "Started At",
			ConnectedAt:    "Connected At",
			EndedAt:        "Ended At",
			Duration:       "Duration",
			Answered:       "Answered",
			ExternalPhone:  "Phone Number",
			RecordingURL:   "Recording",
			CustomerLink:   "Customer",
			UnmatchedPhone: "Unmatched Phone",
			CustomerPhone:  "Phone",
		},
		Sync: SyncConfig{
			Enabled:       true,
			Interval:      5 * time.Minute,
			RunOnStart:    true,
			Timezone:      "UTC",
			DefaultRegion: "US",
			BackfillGrace: 5 * time.Minute,
			HistorySize:   20,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			Factor:         2,
			JitterFraction: 0.1,
		},
		State: StateConfig{
			Backend:   "file",
			Path:      "data/sync_state.json",
			BadgerDir: "data/state",
		},
		Lock: LockConfig{
			Key: "callsync:run-lock",
			TTL: 30 * time.Minute,
		},
		Events: EventsConfig{
			Topic: "callsync.lifecycle",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  []string{"*"},
			RateLimit:    120,
		},
		Security: SecurityConfig{
			Issuer:   "callsync",
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths are keys that accept comma-separated values from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so unrelated environment cannot leak in.
var envMappings = map[string]string{
	"source_base_url":   "source.base_url",
	"source_api_key":    "source.api_key",
	"source_page_limit": "source.page_limit",
	"source_max_pages":  "source.max_pages",
	"source_timeout":    "source.timeout",

	"destination_base_url":            "destination.base_url",
	"destination_api_token":           "destination.api_token",
	"destination_base_id":             "destination.base_id",
	"destination_calls_table":         "destination.calls_table",
	"destination_customers_table":     "destination.customers_table",
	"destination_chunk_size":          "destination.chunk_size",
	"destination_requests_per_second": "destination.requests_per_second",
	"destination_timeout":             "destination.timeout",

	"field_call_id":         "fields.call_id",
	"field_direction":       "fields.direction",
	"field_started_at":      "fields.started_at",
	"field_connected_at":    "fields.connected_at",
	"field_ended_at":        "fields.ended_at",
	"field_duration":        "fields.duration",
	"field_answered":        "fields.answered",
	"field_external_phone":  "fields.external_phone",
	"field_recording_url":   "fields.recording_url",
	"field_customer_link":   "fields.customer_link",
	"field_unmatched_phone": "fields.unmatched_phone",
	"field_customer_phone":  "fields.customer_phone",

	"sync_enabled":          "sync.enabled",
	"sync_interval":         "sync.interval",
	"sync_run_on_start":     "sync.run_on_start",
	"sync_timezone":         "sync.timezone",
	"sync_default_region":   "sync.default_region",
	"sync_backfill_grace":   "sync.backfill_grace",
	"sync_lookback_days":    "sync.lookback_days",
	"sync_date":             "sync.date",
	"sync_time_range_start": "sync.time_range_start",
	"sync_time_range_end":   "sync.time_range_end",
	"sync_history_size":     "sync.history_size",

	"retry_max_attempts":    "retry.max_attempts",
	"retry_base_delay":      "retry.base_delay",
	"retry_max_delay":       "retry.max_delay",
	"retry_factor":          "retry.factor",
	"retry_jitter_fraction": "retry.jitter_fraction",
	"retry_client_errors":   "retry.retry_client_errors",

	"state_backend":    "state.backend",
	"state_path":       "state.path",
	"state_badger_dir": "state.badger_dir",

	"redis_addr":     "lock.redis_addr",
	"redis_password": "lock.redis_password",
	"redis_db":       "lock.redis_db",
	"lock_key":       "lock.key",
	"lock_ttl":       "lock.ttl",

	"events_topic": "events.topic",
	"nats_url":     "events.nats_url",

	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_read_timeout":  "server.read_timeout",
	"http_write_timeout": "server.write_timeout",
	"cors_origins":       "server.cors_origins",
	"rate_limit":         "server.rate_limit",

	"api_secret":   "security.api_secret",
	"token_issuer": "security.issuer",
	"token_ttl":    "security.token_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
