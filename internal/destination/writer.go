// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package destination

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/retry"
)

// WriteStats summarizes one Upsert call.
type WriteStats struct {
	Batches       int
	FailedBatches int
	Written       int
	Failed        int
}

// Add accumulates o into s.
func (s *WriteStats) Add(o WriteStats) {
	s.Batches += o.Batches
	s.FailedBatches += o.FailedBatches
	s.Written += o.Written
	s.Failed += o.Failed
}

// Writer upserts call records in paced, retried chunks.
type Writer struct {
	client    Upserter
	table     string
	chunkSize int
	fields    config.FieldMapping
	policy    retry.Policy
	limiter   *rate.Limiter
}

// NewWriter creates a writer for the calls table.
func NewWriter(client Upserter, cfg config.DestinationConfig, fields config.FieldMapping, policy retry.Policy) *Writer {
	chunk := cfg.ChunkSize
	if chunk < 1 || chunk > MaxBatchSize {
		chunk = MaxBatchSize
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Writer{
		client:    client,
		table:     cfg.CallsTable,
		chunkSize: chunk,
		fields:    fields,
		policy:    policy,
		limiter:   rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), 1),
	}
}

// Upsert writes records keyed on the call id column. A chunk that still
// fails after retries is logged and counted; later chunks are still sent.
// Only context cancellation stops the loop early.
func (w *Writer) Upsert(ctx context.Context, records []models.TransformedCallRecord) (WriteStats, error) {
	var stats WriteStats
	mergeOn := []string{w.fields.CallID}

	for start := 0; start < len(records); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		batch := make([]Fields, len(chunk))
		for i := range chunk {
			batch[i] = BuildFields(w.fields, &chunk[i])
		}

		stats.Batches++
		_, err := retry.Do(ctx, "destination.upsert", w.policy, func(ctx context.Context) (UpsertResult, error) {
			if err := w.limiter.Wait(ctx); err != nil {
				return UpsertResult{}, err
			}
			return w.client.UpsertRecords(ctx, w.table, mergeOn, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.FailedBatches++
			stats.Failed += len(chunk)
			metrics.DestinationBatches.WithLabelValues("failed").Inc()
			logging.Ctx(ctx).Error().Err(err).
				Int("batch_size", len(chunk)).
				Str("first_call_id", chunk[0].Call.ID).
				Msg("Batch write failed, continuing with next batch")
			continue
		}

		stats.Written += len(chunk)
		metrics.DestinationBatches.WithLabelValues("success").Inc()
		metrics.DestinationRecordsWritten.Add(float64(len(chunk)))
	}

	return stats, nil
}

// BuildFields maps a record onto destination columns. Optional values that
// are absent are sent as nil so a replay clears stale cells.
func BuildFields(m config.FieldMapping, r *models.TransformedCallRecord) Fields {
	c := &r.Call
	f := Fields{
		m.CallID:        c.ID,
		m.Direction:     string(c.Direction),
		m.StartedAt:     c.StartedAt.UTC().Format(time.RFC3339),
		m.ConnectedAt:   formatOptional(c.ConnectedAt),
		m.EndedAt:       formatOptional(c.EndedAt),
		m.Duration:      c.DurationSeconds,
		m.Answered:      c.Answered(),
		m.ExternalPhone: nilIfEmpty(c.ExternalPhone),
		m.RecordingURL:  nilIfEmpty(c.RecordingURL),
	}

	switch {
	case r.Matched():
		f[m.CustomerLink] = append([]string(nil), r.CustomerIDs...)
		f[m.UnmatchedPhone] = nil
	case r.Unmatched():
		f[m.CustomerLink] = []string{}
		f[m.UnmatchedPhone] = r.UnmatchedPhone
	default:
		f[m.CustomerLink] = []string{}
		f[m.UnmatchedPhone] = nil
	}
	return f
}

func formatOptional(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
