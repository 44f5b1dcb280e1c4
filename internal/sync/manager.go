// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/destination"
	"github.com/tomtom215/callsync/internal/identity"
	"github.com/tomtom215/callsync/internal/lock"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/source"
	"github.com/tomtom215/callsync/internal/statestore"
	"github.com/tomtom215/callsync/internal/window"
)

var (
	// ErrSyncInProgress is returned when a run is requested while one is active.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrResetWhileRunning is returned by ResetState during a run.
	ErrResetWhileRunning = errors.New("cannot reset state while a sync is running")

	// ErrManagerStopping is returned by TriggerRun while Stop is draining runs.
	ErrManagerStopping = errors.New("sync manager is stopping")
)

// PageSource walks the call feed for a window.
type PageSource interface {
	Each(ctx context.Context, w models.Window, fn source.PageFunc) (source.Summary, error)
}

// Directory resolves call phones to customer records.
type Directory interface {
	Load(ctx context.Context) (identity.LoadStats, error)
	Classify(call models.CallEvent) models.TransformedCallRecord
}

// RecordWriter upserts transformed records.
type RecordWriter interface {
	Upsert(ctx context.Context, records []models.TransformedCallRecord) (destination.WriteStats, error)
}

// WindowResolver turns a window spec and watermark into a window.
type WindowResolver interface {
	Resolve(spec window.Spec, wm models.Watermark) (models.Window, error)
}

// EventSink receives lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// Deps are the collaborators of a Manager. Locker and Events are optional.
type Deps struct {
	Windows   WindowResolver
	Pages     PageSource
	Directory Directory
	Writer    RecordWriter
	State     statestore.Store
	Locker    lock.Locker
	Events    EventSink
}

// Manager runs call syncs one at a time.
type Manager struct {
	cfg  config.SyncConfig
	spec window.Spec
	deps Deps
	now  func() time.Time

	mu        sync.RWMutex
	running   bool
	state     models.SyncState
	lastRun   *models.SyncRunResult
	history   *history
	scheduled bool
	stopping  bool
	baseCtx   context.Context
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a manager. The default window spec comes from cfg.
func NewManager(cfg config.SyncConfig, deps Deps) *Manager {
	if deps.Locker == nil {
		deps.Locker = lock.NoopLocker{}
	}
	size := cfg.HistorySize
	if size < 1 {
		size = 20
	}

	m := &Manager{
		cfg:     cfg,
		spec:    window.SpecFromConfig(cfg),
		deps:    deps,
		now:     time.Now,
		state:   models.SyncStateIdle,
		history: newHistory(size),
		baseCtx: context.Background(),
	}

	logging.Info().
		Str("mode", string(m.spec.Mode())).
		Dur("interval", cfg.Interval).
		Str("timezone", cfg.Timezone).
		Dur("backfill_grace", cfg.BackfillGrace).
		Msg("Sync manager config loaded")

	return m
}

// Start begins the periodic schedule. It returns immediately; runs happen in
// the background until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.scheduled || m.stopping {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.scheduled = true
	m.baseCtx = ctx
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.wg.Add(1)
	m.mu.Unlock()

	logging.Info().Dur("interval", m.cfg.Interval).Bool("run_on_start", m.cfg.RunOnStart).Msg("Starting sync manager...")

	go m.syncLoop(ctx, stop)
	return nil
}

// Stop ends the schedule and waits for in-flight runs to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.scheduled {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.scheduled = false
	m.stopping = true
	close(m.stopChan)
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	m.wg.Wait()

	// Triggers after Stop must not inherit the cancelled schedule context.
	m.mu.Lock()
	m.stopping = false
	m.baseCtx = context.Background()
	m.mu.Unlock()

	logging.Info().Msg("Sync manager stopped")
	return nil
}

func (m *Manager) syncLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	if m.cfg.RunOnStart {
		m.scheduledRun(ctx)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.scheduledRun(ctx)
		}
	}
}

func (m *Manager) scheduledRun(ctx context.Context) {
	if _, err := m.Run(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			logging.Debug().Msg("Scheduled sync skipped, previous run still active")
			return
		}
		logging.Error().Err(err).Msg("Scheduled sync failed")
	}
}

// Run performs one sync with the configured window spec.
func (m *Manager) Run(ctx context.Context) (*models.SyncRunResult, error) {
	return m.RunWith(ctx, m.spec)
}

// RunWith performs one sync with spec overriding the configured window.
// While another run is active it returns a Skipped result and
// ErrSyncInProgress without waiting.
func (m *Manager) RunWith(ctx context.Context, spec window.Spec) (*models.SyncRunResult, error) {
	runID, ok := m.claim()
	if !ok {
		return m.skipped(), ErrSyncInProgress
	}
	return m.run(ctx, runID, spec)
}

// TriggerRun starts a run in the background and returns its id. The slot is
// claimed before returning, so a second call fails with ErrSyncInProgress.
func (m *Manager) TriggerRun() (string, error) {
	return m.TriggerRunWith(m.spec)
}

// TriggerRunWith is TriggerRun with a window override. It fails with
// ErrManagerStopping while Stop is waiting for runs to drain.
func (m *Manager) TriggerRunWith(spec window.Spec) (string, error) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return "", ErrManagerStopping
	}
	runID, ok := m.claimLocked()
	if !ok {
		m.mu.Unlock()
		return "", ErrSyncInProgress
	}
	ctx := m.baseCtx
	// Add under mu so it cannot race Stop's Wait.
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if _, err := m.run(ctx, runID, spec); err != nil && !errors.Is(err, ErrSyncInProgress) {
			logging.Error().Err(err).Str("run_id", runID).Msg("Triggered sync failed")
		}
	}()
	return runID, nil
}

// Wait blocks until background runs started by TriggerRun have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Status returns the current state, last run, watermark and history.
func (m *Manager) Status(ctx context.Context) (*models.SyncStatus, error) {
	wm, err := m.deps.State.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	status := &models.SyncStatus{
		State:   m.state,
		Running: m.running,
		LastRun: m.lastRun,
		History: m.history.snapshot(),
	}
	if !wm.IsZero() {
		status.Watermark = &wm
	}
	return status, nil
}

// IsRunning reports whether a run holds the slot.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ResetState clears the watermark and run history. It fails with
// ErrResetWhileRunning during a run.
func (m *Manager) ResetState(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrResetWhileRunning
	}
	if err := m.deps.State.Reset(ctx); err != nil {
		return fmt.Errorf("reset watermark: %w", err)
	}

	m.history.clear()
	m.lastRun = nil
	m.state = models.SyncStateIdle
	metrics.RecordWatermark(time.Time{})
	logging.Ctx(ctx).Info().Msg("Sync state reset")
	return nil
}

// claim takes the run slot and returns a new run id.
func (m *Manager) claim() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimLocked()
}

func (m *Manager) claimLocked() (string, bool) {
	if m.running {
		return "", false
	}
	m.running = true
	m.state = models.SyncStateRunning
	return logging.GenerateRunID(), true
}

// release frees the run slot and records result.
func (m *Manager) release(result *models.SyncRunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if result == nil {
		m.state = m.stateAfterLocked()
		return
	}
	m.lastRun = result
	m.history.push(result)
	if result.Success {
		m.state = models.SyncStateIdle
	} else {
		m.state = models.SyncStateFailed
	}
}

// stateAfterLocked restores the state that preceded an aborted claim.
func (m *Manager) stateAfterLocked() models.SyncState {
	if m.lastRun != nil && !m.lastRun.Success {
		return models.SyncStateFailed
	}
	return models.SyncStateIdle
}

func (m *Manager) skipped() *models.SyncRunResult {
	r := &models.SyncRunResult{
		Skipped:   true,
		Error:     ErrSyncInProgress.Error(),
		Timestamp: m.now(),
	}
	metrics.RecordSyncRun(r)
	return r
}

// emit publishes event. Sink failures are logged and otherwise ignored.
func (m *Manager) emit(ctx context.Context, event models.LifecycleEvent) {
	if m.deps.Events == nil {
		return
	}
	if err := m.deps.Events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("event", string(event.Type)).Msg("Lifecycle event not delivered to every sink")
	}
}
