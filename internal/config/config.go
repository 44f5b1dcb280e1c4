// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package config loads the immutable Callsync configuration.
//
// Configuration is layered with koanf: struct defaults, then an optional YAML
// file, then environment variables. The resulting *Config is built once in
// main and handed to every component constructor; nothing reads the
// environment after startup.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Source      SourceConfig      `koanf:"source"`
	Destination DestinationConfig `koanf:"destination"`
	Fields      FieldMapping      `koanf:"fields"`
	Sync        SyncConfig        `koanf:"sync"`
	Retry       RetryConfig       `koanf:"retry"`
	State       StateConfig       `koanf:"state"`
	Lock        LockConfig        `koanf:"lock"`
	Events      EventsConfig      `koanf:"events"`
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// SourceConfig describes the telephony provider's call feed.
type SourceConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	APIKey  string `koanf:"api_key" validate:"required"`

	// PageLimit is the per-page item count; the provider caps it at 50.
	PageLimit int `koanf:"page_limit" validate:"min=1,max=50"`

	// MaxPages bounds a single run's pagination.
	MaxPages int `koanf:"max_pages" validate:"min=1"`

	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DestinationConfig describes the CRM table store.
type DestinationConfig struct {
	BaseURL        string `koanf:"base_url" validate:"required,url"`
	APIToken       string `koanf:"api_token" validate:"required"`
	BaseID         string `koanf:"base_id" validate:"required"`
	CallsTable     string `koanf:"calls_table" validate:"required"`
	CustomersTable string `koanf:"customers_table" validate:"required"`

	// ChunkSize is the number of records per batch write; the store accepts at most 10.
	ChunkSize int `koanf:"chunk_size" validate:"min=1,max=10"`

	// RequestsPerSecond is the write ceiling the writer paces itself under.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// FieldMapping names the destination columns. Resolved once at startup.
type FieldMapping struct {
	CallID         string `koanf:"call_id" validate:"required"`
	Direction      string `koanf:"direction" validate:"required"`
	StartedAt      string `koanf:"started_at" validate:"required"`
	ConnectedAt    string `koanf:"connected_at" validate:"required"`
	EndedAt        string `koanf:"ended_at" validate:"required"`
	Duration       string `koanf:"duration" validate:"required"`
	Answered       string `koanf:"answered" validate:"required"`
	ExternalPhone  string `koanf:"external_phone" validate:"required"`
	RecordingURL   string `koanf:"recording_url" validate:"required"`
	CustomerLink   string `koanf:"customer_link" validate:"required"`
	UnmatchedPhone string `koanf:"unmatched_phone" validate:"required"`

	// CustomerPhone is the phone column of the customers table.
	CustomerPhone string `koanf:"customer_phone" validate:"required"`
}

// SyncConfig controls windowing and scheduling.
//
// At most one window mode applies per run, in this order: TimeRangeStart and
// TimeRangeEnd (optionally on Date), Date, LookbackDays, continuous.
type SyncConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval" validate:"gt=0"`
	RunOnStart    bool          `koanf:"run_on_start"`
	Timezone      string        `koanf:"timezone" validate:"required,timezone"`
	DefaultRegion string        `koanf:"default_region" validate:"required,region"`
	BackfillGrace time.Duration `koanf:"backfill_grace" validate:"gte=0"`
	LookbackDays  int           `koanf:"lookback_days" validate:"gte=0"`

	// Date is a calendar day in YYYY-MM-DD form.
	Date           string `koanf:"date" validate:"omitempty,datetime=2006-01-02"`
	TimeRangeStart string `koanf:"time_range_start" validate:"omitempty,hhmm"`
	TimeRangeEnd   string `koanf:"time_range_end" validate:"omitempty,hhmm"`

	HistorySize int `koanf:"history_size" validate:"min=1"`
}

// RetryConfig is the retry policy for every remote call.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1"`
	BaseDelay      time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay       time.Duration `koanf:"max_delay" validate:"gt=0"`
	Factor         float64       `koanf:"factor" validate:"gte=1"`
	JitterFraction float64       `koanf:"jitter_fraction" validate:"gte=0,lte=1"`

	// RetryClientErrors retries 400/401/403/404/422 responses like transient failures.
	RetryClientErrors bool `koanf:"retry_client_errors"`
}

// StateConfig selects the watermark backend.
type StateConfig struct {
	Backend   string `koanf:"backend" validate:"oneof=file badger"`
	Path      string `koanf:"path"`
	BadgerDir string `koanf:"badger_dir"`
}

// LockConfig enables the cross-process run lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr     string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	Key           string        `koanf:"key"`
	TTL           time.Duration `koanf:"ttl"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Topic   string `koanf:"topic" validate:"required"`
	NATSURL string `koanf:"nats_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	CORSOrigins  []string      `koanf:"cors_origins"`

	// RateLimit is requests per minute per client IP.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// SecurityConfig protects mutating control endpoints. An empty APISecret
// leaves them open, which is only appropriate on a private network.
type SecurityConfig struct {
	APISecret string `koanf:"api_secret"`
	Issuer    string `koanf:"issuer"`

	// TokenTTL is the lifetime of tokens minted with -issue-token.
	TokenTTL time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Location returns the configured sync timezone. Validate guarantees it loads.
func (s SyncConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasTimeRange reports whether a daily time-of-day range is configured.
func (s SyncConfig) HasTimeRange() bool {
	return s.TimeRangeStart != "" && s.TimeRangeEnd != ""
}
