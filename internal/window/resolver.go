// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package window computes the [start, end) interval a sync run fetches.
//
// Four modes are supported and chosen in priority order when more than one
// is configured: a daily time-of-day range, a whole calendar date, a fixed
// look-back of N days, and continuous (resume from the watermark). Calendar
// arithmetic happens in the configured IANA timezone through ZoneConverter.
package window

import (
	"fmt"
	"time"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/models"
)

const (
	dateLayout = "2006-01-02"
	hhmmLayout = "15:04"
)

// Spec selects a window mode. The zero Spec means continuous.
type Spec struct {
	// Date is YYYY-MM-DD. Alone it selects the whole day; with a time range it
	// picks the day the range applies to (default today).
	Date           string `json:"date,omitempty"`
	LookbackDays   int    `json:"lookback_days,omitempty"`
	TimeRangeStart string `json:"time_range_start,omitempty"`
	TimeRangeEnd   string `json:"time_range_end,omitempty"`
}

// SpecFromConfig returns the configured default window spec.
func SpecFromConfig(cfg config.SyncConfig) Spec {
	return Spec{
		Date:           cfg.Date,
		LookbackDays:   cfg.LookbackDays,
		TimeRangeStart: cfg.TimeRangeStart,
		TimeRangeEnd:   cfg.TimeRangeEnd,
	}
}

// Mode returns the mode the spec selects.
func (s Spec) Mode() models.WindowMode {
	switch {
	case s.TimeRangeStart != "" && s.TimeRangeEnd != "":
		return models.ModeTimeRange
	case s.Date != "":
		return models.ModeDate
	case s.LookbackDays > 0:
		return models.ModeLookback
	default:
		return models.ModeContinuous
	}
}

// Resolver resolves specs against a clock and a timezone.
type Resolver struct {
	timezone string
	grace    time.Duration
	zones    ZoneConverter
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithZoneConverter overrides the tz database converter.
func WithZoneConverter(z ZoneConverter) Option {
	return func(r *Resolver) { r.zones = z }
}

// NewResolver creates a resolver for the sync timezone and backfill grace.
func NewResolver(cfg config.SyncConfig, opts ...Option) *Resolver {
	r := &Resolver{
		timezone: cfg.Timezone,
		grace:    cfg.BackfillGrace,
		zones:    NewTZDatabase(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.timezone == "" {
		r.timezone = "UTC"
	}
	return r
}

// Resolve returns the window for spec. The result may be Empty, which the
// caller treats as a no-op run rather than an error.
func (r *Resolver) Resolve(spec Spec, wm models.Watermark) (models.Window, error) {
	now := r.now()
	w := models.Window{Mode: spec.Mode(), Timezone: r.timezone}

	var err error
	switch w.Mode {
	case models.ModeTimeRange:
		w.Start, w.End, err = r.timeRange(spec, now)
	case models.ModeDate:
		w.Start, w.End, err = r.wholeDay(spec.Date)
	case models.ModeLookback:
		w.Start, w.End = now.Add(-time.Duration(spec.LookbackDays)*24*time.Hour), now
	default:
		w.Start, w.End, err = r.continuous(wm, now)
	}
	if err != nil {
		return models.Window{}, err
	}

	if w.End.After(now) {
		w.End = now
	}
	return w, nil
}

func (r *Resolver) timeRange(spec Spec, now time.Time) (time.Time, time.Time, error) {
	day, err := r.day(spec.Date, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := time.Parse(hhmmLayout, spec.TimeRangeStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range start %q: %w", spec.TimeRangeStart, err)
	}
	to, err := time.Parse(hhmmLayout, spec.TimeRangeEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range end %q: %w", spec.TimeRangeEnd, err)
	}

	day.Hour, day.Minute = from.Hour(), from.Minute()
	start, err := r.zones.ToInstant(day, r.timezone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day.Hour, day.Minute = to.Hour(), to.Minute()
	end, err := r.zones.ToInstant(day, r.timezone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// wholeDay returns [00:00, next day 00:00) in the sync timezone, which is 23
// or 25 hours long on DST transition days.
func (r *Resolver) wholeDay(date string) (time.Time, time.Time, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	start, err := r.zones.ToInstant(WallClock{Year: d.Year(), Month: d.Month(), Day: d.Day()}, r.timezone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	next := d.AddDate(0, 0, 1)
	end, err := r.zones.ToInstant(WallClock{Year: next.Year(), Month: next.Month(), Day: next.Day()}, r.timezone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (r *Resolver) continuous(wm models.Watermark, now time.Time) (time.Time, time.Time, error) {
	if !wm.IsZero() {
		return wm.LastSyncedAt.Add(-r.grace), now, nil
	}
	today, err := r.day("", now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := r.zones.ToInstant(today, r.timezone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, now, nil
}

// day returns midnight of date, or of today in the sync timezone when date is empty.
func (r *Resolver) day(date string, now time.Time) (WallClock, error) {
	if date != "" {
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return WallClock{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		return WallClock{Year: d.Year(), Month: d.Month(), Day: d.Day()}, nil
	}

	local, err := r.zones.ToWallClock(now, r.timezone)
	if err != nil {
		return WallClock{}, err
	}
	return WallClock{Year: local.Year, Month: local.Month, Day: local.Day}, nil
}
