// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package statestore persists the sync watermark.
//
// The watermark is the only state that survives a restart. Writes are atomic:
// a reader sees either the previous record or the new one, never a torn
// write. A missing record reads as the zero Watermark ("never synced").
package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/models"
)

// Store reads and writes the watermark.
type Store interface {
	Get(ctx context.Context) (models.Watermark, error)
	Set(ctx context.Context, t time.Time) error
	Reset(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "badger":
		s, err := OpenBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// record is the persisted layout:
//
//	{"last_synced_at": 1760875200, "last_synced_iso": "2025-10-19T12:00:00Z", "updated_at": "..."}
type record struct {
	LastSyncedAt  int64  `json:"last_synced_at"`
	LastSyncedISO string `json:"last_synced_iso"`
	UpdatedAt     string `json:"updated_at"`
}

// nowFunc is replaced in tests.
var nowFunc = time.Now

func encode(t time.Time) ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("refusing to persist zero watermark")
	}
	rec := record{
		LastSyncedAt:  t.Unix(),
		LastSyncedISO: t.UTC().Format(time.RFC3339),
		UpdatedAt:     nowFunc().UTC().Format(time.RFC3339),
	}
	return json.Marshal(rec)
}

func decode(data []byte) (models.Watermark, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Watermark{}, fmt.Errorf("decode watermark: %w", err)
	}
	if rec.LastSyncedAt <= 0 {
		return models.Watermark{}, nil
	}
	last := time.Unix(rec.LastSyncedAt, 0).UTC()
	wm := models.Watermark{LastSyncedAt: last, LastSyncedISO: rec.LastSyncedISO}
	if wm.LastSyncedISO == "" {
		wm.LastSyncedISO = last.Format(time.RFC3339)
	}
	if rec.UpdatedAt != "" {
		if updated, err := time.Parse(time.RFC3339, rec.UpdatedAt); err == nil {
			wm.UpdatedAt = updated
		}
	}
	return wm, nil
}
