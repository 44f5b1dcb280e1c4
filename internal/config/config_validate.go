// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/callsync/internal/validation"
)

// Validate checks that required configuration is present and consistent.
// It runs before any remote call is made.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateWindow(); err != nil {
		return err
	}

	if err := c.validateRetry(); err != nil {
		return err
	}

	if err := c.validateState(); err != nil {
		return err
	}

	return c.validateLock()
}

func (c *Config) validateWindow() error {
	s := c.Sync
	if (s.TimeRangeStart == "") != (s.TimeRangeEnd == "") {
		return fmt.Errorf("sync.time_range_start and sync.time_range_end must be set together")
	}
	if s.HasTimeRange() {
		start, _ := time.Parse("15:04", s.TimeRangeStart)
		end, _ := time.Parse("15:04", s.TimeRangeEnd)
		if end.Before(start) {
			return fmt.Errorf("sync.time_range_end (%s) is before sync.time_range_start (%s)", s.TimeRangeEnd, s.TimeRangeStart)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) must not be less than retry.base_delay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required when state.backend=file")
		}
	case "badger":
		if c.State.BadgerDir == "" {
			return fmt.Errorf("state.badger_dir is required when state.backend=badger")
		}
	}
	return nil
}

func (c *Config) validateLock() error {
	if c.Lock.RedisAddr == "" {
		return nil
	}
	if c.Lock.Key == "" {
		return fmt.Errorf("lock.key is required when lock.redis_addr is set")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive when lock.redis_addr is set")
	}
	return nil
}
