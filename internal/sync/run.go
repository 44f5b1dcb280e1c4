// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/window"
)

// run executes one claimed run and releases the slot when done.
func (m *Manager) run(ctx context.Context, runID string, spec window.Spec) (*models.SyncRunResult, error) {
	ctx = logging.ContextWithRunID(ctx, runID)

	releaseLock, ok, err := m.deps.Locker.TryAcquire(ctx)
	if err != nil {
		m.release(nil)
		return m.skipped(), fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		m.release(nil)
		logging.Ctx(ctx).Info().Msg("Run lock held by another instance, skipping")
		return m.skipped(), fmt.Errorf("%w: lock held by another instance", ErrSyncInProgress)
	}
	defer releaseLock()

	metrics.SyncInProgress.Set(1)
	defer metrics.SyncInProgress.Set(0)

	started := m.now()
	result := &models.SyncRunResult{RunID: runID, Timestamp: started}
	m.emit(ctx, models.LifecycleEvent{Type: models.EventSyncStarted, RunID: runID, Timestamp: started})
	logging.Ctx(ctx).Info().Str("mode", string(spec.Mode())).Msg("Sync started")

	w, err := m.execute(ctx, spec, result)
	result.Duration = m.now().Sub(started)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Success = true
	}

	m.release(result)
	metrics.RecordSyncRun(result)

	event := models.LifecycleEvent{RunID: runID, Timestamp: m.now(), Result: result}
	if !w.Start.IsZero() {
		event.Window = &w
	}
	if err != nil {
		event.Type = models.EventSyncFailed
		logging.Ctx(ctx).Error().Err(err).
			Int("pages", result.PagesProcessed).
			Int("calls", result.TotalCalls).
			Dur("duration", result.Duration).
			Msg("Sync failed")
		m.emit(ctx, event)
		return result, err
	}

	event.Type = models.EventSyncCompleted
	logging.Ctx(ctx).Info().
		Bool("no_op", result.NoOp).
		Bool("partial", result.Partial).
		Bool("truncated", result.Truncated).
		Int("pages", result.PagesProcessed).
		Int("calls", result.TotalCalls).
		Int("matched", result.MatchedCalls).
		Int("unmatched", result.UnmatchedCalls).
		Int("no_phone", result.NoPhoneCalls).
		Int("written", result.RecordsWritten).
		Int("failed_batches", result.FailedBatches).
		Dur("duration", result.Duration).
		Msg("Sync completed")
	m.emit(ctx, event)
	return result, nil
}

// execute is the run pipeline: window, directory, pages, watermark.
func (m *Manager) execute(ctx context.Context, spec window.Spec, result *models.SyncRunResult) (models.Window, error) {
	wm, err := m.deps.State.Get(ctx)
	if err != nil {
		return models.Window{}, fmt.Errorf("read watermark: %w", err)
	}

	w, err := m.deps.Windows.Resolve(spec, wm)
	if err != nil {
		return models.Window{}, fmt.Errorf("resolve window: %w", err)
	}
	result.Mode = w.Mode
	result.WindowStart = w.Start
	result.WindowEnd = w.End

	if w.Empty() {
		result.NoOp = true
		logging.Ctx(ctx).Info().Time("start", w.Start).Time("end", w.End).Msg("Window is empty, nothing to sync")
		return w, nil
	}
	logging.Ctx(ctx).Info().Str("mode", string(w.Mode)).Time("start", w.Start).Time("end", w.End).Msg("Window resolved")

	if _, err := m.deps.Directory.Load(ctx); err != nil {
		return w, fmt.Errorf("load customer directory: %w", err)
	}

	tracker := newWatermarkTracker(w, wm)
	summary, err := m.deps.Pages.Each(ctx, w, func(ctx context.Context, pageNum int, calls []models.CallEvent) error {
		return m.processPage(ctx, pageNum, calls, result, tracker)
	})
	result.PagesProcessed = summary.Pages
	result.Partial = summary.Partial
	result.Truncated = summary.Truncated
	if err != nil {
		return w, err
	}

	if !summary.Partial && !summary.Truncated {
		next, ok := tracker.drained()
		if err := m.advance(ctx, tracker, next, ok); err != nil {
			return w, err
		}
	}
	return w, nil
}

// processPage classifies and writes one page, then advances the watermark.
func (m *Manager) processPage(ctx context.Context, pageNum int, calls []models.CallEvent, result *models.SyncRunResult, tracker *watermarkTracker) error {
	records := make([]models.TransformedCallRecord, 0, len(calls))
	var matched, unmatched, noPhone int
	for i := range calls {
		rec := m.deps.Directory.Classify(calls[i])
		switch {
		case rec.Matched():
			matched++
		case rec.Unmatched():
			unmatched++
		default:
			noPhone++
		}
		records = append(records, rec)
	}

	stats, err := m.deps.Writer.Upsert(ctx, records)
	if err != nil {
		return fmt.Errorf("write page %d: %w", pageNum, err)
	}

	result.TotalCalls += len(calls)
	result.MatchedCalls += matched
	result.UnmatchedCalls += unmatched
	result.NoPhoneCalls += noPhone
	result.RecordsWritten += stats.Written
	result.FailedBatches += stats.FailedBatches

	metrics.SyncCallsProcessed.WithLabelValues("matched").Add(float64(matched))
	metrics.SyncCallsProcessed.WithLabelValues("unmatched").Add(float64(unmatched))
	metrics.SyncCallsProcessed.WithLabelValues("no_phone").Add(float64(noPhone))

	logging.Ctx(ctx).Debug().
		Int("page", pageNum).
		Int("calls", len(calls)).
		Int("written", stats.Written).
		Int("failed_batches", stats.FailedBatches).
		Msg("Page processed")

	next, ok := tracker.afterPage(calls)
	return m.advance(ctx, tracker, next, ok)
}

func (m *Manager) advance(ctx context.Context, tracker *watermarkTracker, next time.Time, ok bool) error {
	if !ok {
		return nil
	}
	if err := m.deps.State.Set(ctx, next); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}
	tracker.commit(next)
	metrics.RecordWatermark(next)
	return nil
}

// watermarkTracker decides when and where the watermark moves during a run.
type watermarkTracker struct {
	window  models.Window
	current time.Time
	enabled bool
}

func newWatermarkTracker(w models.Window, wm models.Watermark) *watermarkTracker {
	enabled := w.Mode == models.ModeContinuous ||
		wm.IsZero() ||
		!w.Start.After(wm.LastSyncedAt)
	return &watermarkTracker{window: w, current: wm.LastSyncedAt, enabled: enabled}
}

// afterPage returns the latest call start in calls if it moves the watermark forward.
func (t *watermarkTracker) afterPage(calls []models.CallEvent) (time.Time, bool) {
	var latest time.Time
	for i := range calls {
		if calls[i].StartedAt.After(latest) {
			latest = calls[i].StartedAt
		}
	}
	return t.candidate(latest)
}

// drained returns the window end if it moves the watermark forward.
func (t *watermarkTracker) drained() (time.Time, bool) {
	return t.candidate(t.window.End)
}

func (t *watermarkTracker) candidate(ts time.Time) (time.Time, bool) {
	if !t.enabled || ts.IsZero() {
		return time.Time{}, false
	}
	// The store keeps whole seconds.
	ts = ts.UTC().Truncate(time.Second)
	if !ts.After(t.current) {
		return time.Time{}, false
	}
	return ts, true
}

func (t *watermarkTracker) commit(ts time.Time) {
	t.current = ts
}
