// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package identity links calls to customer directory entries by phone number.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/callsync/internal/destination"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/phone"
	"github.com/tomtom215/callsync/internal/retry"
)

// maxDirectoryPages guards against a store that never stops returning offsets.
const maxDirectoryPages = 10000

// LoadStats describes one directory load.
type LoadStats struct {
	Pages      int
	Entries    int
	Indexed    int
	NoPhone    int
	Invalid    int
	Duplicates int
}

// Resolver holds a normalized phone index over the customer directory.
type Resolver struct {
	lister     destination.Lister
	table      string
	phoneField string
	normalizer *phone.Normalizer
	policy     retry.Policy

	mu    sync.RWMutex
	index map[string]string
}

// NewResolver creates a resolver reading table's phoneField column.
func NewResolver(lister destination.Lister, table, phoneField string, normalizer *phone.Normalizer, policy retry.Policy) *Resolver {
	return &Resolver{
		lister:     lister,
		table:      table,
		phoneField: phoneField,
		normalizer: normalizer,
		policy:     policy,
		index:      make(map[string]string),
	}
}

// Load drains every directory page and replaces the index. Nothing is
// replaced if any page fails. When two entries normalize to the same phone
// the one loaded last wins.
func (r *Resolver) Load(ctx context.Context) (LoadStats, error) {
	var stats LoadStats
	entries := make([]models.DirectoryEntry, 0, 256)
	offset := ""

	for {
		if stats.Pages >= maxDirectoryPages {
			return stats, fmt.Errorf("directory exceeded %d pages", maxDirectoryPages)
		}
		page, err := retry.Do(ctx, "identity.list_directory", r.policy, func(ctx context.Context) (destination.RecordPage, error) {
			return r.lister.ListRecords(ctx, r.table, []string{r.phoneField}, offset)
		})
		if err != nil {
			return stats, fmt.Errorf("load directory page %d: %w", stats.Pages+1, err)
		}
		stats.Pages++

		for _, rec := range page.Records {
			raw, _ := rec.Fields[r.phoneField].(string)
			entries = append(entries, models.DirectoryEntry{ID: rec.ID, Phone: raw})
		}

		if page.Offset == "" || page.Offset == offset {
			break
		}
		offset = page.Offset
	}

	index := make(map[string]string, len(entries))
	for _, e := range entries {
		stats.Entries++
		if e.Phone == "" {
			stats.NoPhone++
			continue
		}
		normalized, ok := r.normalizer.Normalize(e.Phone)
		if !ok {
			stats.Invalid++
			continue
		}
		if prev, dup := index[normalized]; dup && prev != e.ID {
			stats.Duplicates++
			logging.Ctx(ctx).Debug().
				Str("phone", normalized).
				Str("previous_id", prev).
				Str("id", e.ID).
				Msg("Duplicate directory phone, keeping the later entry")
		}
		index[normalized] = e.ID
	}
	stats.Indexed = len(index)

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()

	metrics.DirectoryEntries.Set(float64(stats.Indexed))
	metrics.DirectoryDuplicates.Add(float64(stats.Duplicates))
	logging.Ctx(ctx).Info().
		Int("pages", stats.Pages).
		Int("entries", stats.Entries).
		Int("indexed", stats.Indexed).
		Int("duplicates", stats.Duplicates).
		Int("invalid", stats.Invalid).
		Msg("Customer directory loaded")

	return stats, nil
}

// Lookup returns the directory id for a raw phone number.
func (r *Resolver) Lookup(raw string) (string, bool) {
	normalized, ok := r.normalizer.Normalize(raw)
	if !ok {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[normalized]
	return id, ok
}

// Size returns the number of indexed phones.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// Classify builds the destination record for call. A call with a phone is
// either linked to one entry or carries its raw phone as the fallback.
func (r *Resolver) Classify(call models.CallEvent) models.TransformedCallRecord {
	rec := models.TransformedCallRecord{Call: call}
	if call.ExternalPhone == "" {
		return rec
	}
	if id, ok := r.Lookup(call.ExternalPhone); ok {
		rec.CustomerIDs = []string{id}
		return rec
	}
	rec.UnmatchedPhone = call.ExternalPhone
	return rec
}
