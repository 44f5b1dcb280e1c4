// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package window

import (
	"fmt"
	"sync"
	"time"

	// Embedded so zone names resolve on hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

// WallClock is a local calendar date and time of day, without a zone.
type WallClock struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// ZoneConverter converts between instants and wall-clock readings in a
// named zone.
type ZoneConverter interface {
	ToInstant(wall WallClock, zone string) (time.Time, error)
	ToWallClock(t time.Time, zone string) (WallClock, error)
}

// TZDatabase is a ZoneConverter backed by the IANA tz database. DST offsets
// come from the database rules for that exact date. A wall clock that falls
// in a spring-forward gap resolves with the offset in effect before the gap.
type TZDatabase struct {
	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewTZDatabase returns an empty converter; zones are loaded on first use.
func NewTZDatabase() *TZDatabase {
	return &TZDatabase{cache: make(map[string]*time.Location)}
}

func (z *TZDatabase) ToInstant(wall WallClock, zone string) (time.Time, error) {
	loc, err := z.location(zone)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(wall.Year, wall.Month, wall.Day, wall.Hour, wall.Minute, 0, 0, loc), nil
}

func (z *TZDatabase) ToWallClock(t time.Time, zone string) (WallClock, error) {
	loc, err := z.location(zone)
	if err != nil {
		return WallClock{}, err
	}
	local := t.In(loc)
	return WallClock{
		Year:   local.Year(),
		Month:  local.Month(),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
	}, nil
}

func (z *TZDatabase) location(zone string) (*time.Location, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if loc, ok := z.cache[zone]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	z.cache[zone] = loc
	return loc, nil
}
