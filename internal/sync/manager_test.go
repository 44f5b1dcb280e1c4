// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/destination"
	"github.com/tomtom215/callsync/internal/identity"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/retry"
	"github.com/tomtom215/callsync/internal/source"
	"github.com/tomtom215/callsync/internal/statestore"
	"github.com/tomtom215/callsync/internal/window"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var fixedNow = time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

// fakeFetcher serves scripted pages; an entry in fail makes that page index
// fail on every attempt.
type fakeFetcher struct {
	mu      stdsync.Mutex
	pages   []source.Page
	fail    map[int]error
	windows [][2]time.Time
}

func (f *fakeFetcher) FetchPage(_ context.Context, start, end time.Time, cursor string) (source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, [2]time.Time{start, end})

	idx := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "c%d", &idx); err != nil {
			return source.Page{}, err
		}
	}
	if err, ok := f.fail[idx]; ok {
		return source.Page{}, err
	}
	if idx >= len(f.pages) {
		return source.Page{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeFetcher) firstWindow() [2]time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[0]
}

// pagesOf builds linked pages with cursors c1, c2, ...
func pagesOf(sizes ...int) []source.Page {
	pages := make([]source.Page, len(sizes))
	n := 0
	for i, size := range sizes {
		for j := 0; j < size; j++ {
			pages[i].Calls = append(pages[i].Calls, models.CallEvent{
				ID:            fmt.Sprintf("call-%04d", n),
				Direction:     models.DirectionInbound,
				StartedAt:     time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
				ExternalPhone: phoneFor(n),
			})
			n++
		}
		if i+1 < len(sizes) {
			pages[i].NextCursor = fmt.Sprintf("c%d", i+1)
		}
	}
	return pages
}

// phoneFor cycles through matched, unmatched and missing phones.
func phoneFor(n int) string {
	switch n % 3 {
	case 0:
		return "known"
	case 1:
		return "stranger"
	default:
		return ""
	}
}

type fakeDirectory struct {
	loadErr error
	loads   int
}

func (d *fakeDirectory) Load(context.Context) (identity.LoadStats, error) {
	d.loads++
	return identity.LoadStats{}, d.loadErr
}

func (d *fakeDirectory) Classify(call models.CallEvent) models.TransformedCallRecord {
	rec := models.TransformedCallRecord{Call: call}
	switch call.ExternalPhone {
	case "":
	case "known":
		rec.CustomerIDs = []string{"recC1"}
	default:
		rec.UnmatchedPhone = call.ExternalPhone
	}
	return rec
}

type fakeWriter struct {
	mu      stdsync.Mutex
	written []models.TransformedCallRecord
	block   chan struct{}
	entered chan struct{}
}

func (w *fakeWriter) Upsert(ctx context.Context, records []models.TransformedCallRecord) (destination.WriteStats, error) {
	if w.block != nil {
		select {
		case w.entered <- struct{}{}:
		default:
		}
		select {
		case <-w.block:
		case <-ctx.Done():
			return destination.WriteStats{}, ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, records...)
	return destination.WriteStats{Batches: 1, Written: len(records)}, nil
}

type recordingSink struct {
	mu     stdsync.Mutex
	events []models.LifecycleEvent
}

func (s *recordingSink) Publish(_ context.Context, e models.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []models.LifecycleEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LifecycleEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type denyLocker struct{}

func (denyLocker) TryAcquire(context.Context) (func(), bool, error) { return nil, false, nil }
func (denyLocker) Close() error                                     { return nil }

type harness struct {
	mgr     *Manager
	fetcher *fakeFetcher
	dir     *fakeDirectory
	writer  *fakeWriter
	state   statestore.Store
	sink    *recordingSink
}

func newHarness(t *testing.T, pages []source.Page) *harness {
	t.Helper()

	cfg := config.SyncConfig{
		Interval:      time.Hour,
		Timezone:      "UTC",
		DefaultRegion: "US",
		BackfillGrace: 5 * time.Minute,
		HistorySize:   20,
	}
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1, Retryable: retry.IsRetryable}

	h := &harness{
		fetcher: &fakeFetcher{pages: pages, fail: map[int]error{}},
		dir:     &fakeDirectory{},
		writer:  &fakeWriter{},
		state:   statestore.NewFileStore(filepath.Join(t.TempDir(), "sync_state.json")),
		sink:    &recordingSink{},
	}
	h.mgr = NewManager(cfg, Deps{
		Windows:   window.NewResolver(cfg, window.WithClock(func() time.Time { return fixedNow })),
		Pages:     source.NewPaginator(h.fetcher, policy, 100),
		Directory: h.dir,
		Writer:    h.writer,
		State:     h.state,
		Events:    h.sink,
	})
	return h
}

func (h *harness) watermark(t *testing.T) time.Time {
	t.Helper()
	wm, err := h.state.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return wm.LastSyncedAt
}

func TestManager_PageTwoFailureKeepsPageOne(t *testing.T) {
	h := newHarness(t, pagesOf(50, 50))
	h.fetcher.fail[1] = errors.New("connection reset")

	res, err := h.mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !res.Success || !res.Partial {
		t.Errorf("Success = %v, Partial = %v, want true, true", res.Success, res.Partial)
	}
	if res.TotalCalls != 50 || res.PagesProcessed != 1 {
		t.Errorf("TotalCalls = %d, PagesProcessed = %d, want 50, 1", res.TotalCalls, res.PagesProcessed)
	}
	// Latest start on page 1 is call 49.
	want := time.Date(2026, 10, 19, 8, 49, 0, 0, time.UTC)
	if got := h.watermark(t); !got.Equal(want) {
		t.Errorf("watermark = %v, want %v", got, want)
	}
	if len(h.writer.written) != 50 {
		t.Errorf("written = %d, want 50", len(h.writer.written))
	}
}

func TestManager_DrainedRunAdvancesToWindowEnd(t *testing.T) {
	h := newHarness(t, pagesOf(3, 3, 2))

	res, err := h.mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Mode != models.ModeContinuous {
		t.Errorf("Mode = %v, want continuous", res.Mode)
	}
	midnight := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	if w := h.fetcher.firstWindow(); !w[0].Equal(midnight) || !w[1].Equal(fixedNow) {
		t.Errorf("window = [%v, %v), want [%v, %v)", w[0], w[1], midnight, fixedNow)
	}
	if res.TotalCalls != 8 || res.PagesProcessed != 3 {
		t.Errorf("TotalCalls = %d, PagesProcessed = %d, want 8, 3", res.TotalCalls, res.PagesProcessed)
	}
	if res.MatchedCalls != 3 || res.UnmatchedCalls != 3 || res.NoPhoneCalls != 2 {
		t.Errorf("matched/unmatched/no_phone = %d/%d/%d, want 3/3/2", res.MatchedCalls, res.UnmatchedCalls, res.NoPhoneCalls)
	}
	if res.RecordsWritten != 8 {
		t.Errorf("RecordsWritten = %d, want 8", res.RecordsWritten)
	}
	if got := h.watermark(t); !got.Equal(fixedNow) {
		t.Errorf("watermark = %v, want window end %v", got, fixedNow)
	}
	if h.dir.loads != 1 {
		t.Errorf("directory loads = %d, want 1", h.dir.loads)
	}

	want := []models.LifecycleEventType{models.EventSyncStarted, models.EventSyncCompleted}
	if got := h.sink.types(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestManager_ContinuousResumesFromWatermarkMinusGrace(t *testing.T) {
	h := newHarness(t, pagesOf(1))
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if err := h.state.Set(context.Background(), t0); err != nil {
		t.Fatal(err)
	}

	if _, err := h.mgr.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	w := h.fetcher.firstWindow()
	if want := t0.Add(-300 * time.Second); !w[0].Equal(want) {
		t.Errorf("window start = %v, want %v", w[0], want)
	}
	if !w[1].Equal(fixedNow) {
		t.Errorf("window end = %v, want %v", w[1], fixedNow)
	}
}

func TestManager_EmptyWindowIsNoOp(t *testing.T) {
	h := newHarness(t, pagesOf(5))

	// 16:00-17:00 is later than now, so the clamped window is empty.
	res, err := h.mgr.RunWith(context.Background(), window.Spec{TimeRangeStart: "16:00", TimeRangeEnd: "17:00"})
	if err != nil {
		t.Fatalf("RunWith() error = %v", err)
	}
	if !res.Success || !res.NoOp || res.TotalCalls != 0 {
		t.Errorf("result = %+v, want successful no-op", res)
	}
	if len(h.fetcher.windows) != 0 {
		t.Errorf("feed fetched %d times, want 0", len(h.fetcher.windows))
	}
	if h.dir.loads != 0 {
		t.Errorf("directory loaded on a no-op run")
	}
	if !h.watermark(t).IsZero() {
		t.Error("no-op run moved the watermark")
	}
}

func TestManager_FirstPageFailureFailsRun(t *testing.T) {
	h := newHarness(t, pagesOf(5))
	h.fetcher.fail[0] = errors.New("feed down")

	res, err := h.mgr.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want failure")
	}
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want failure with message", res)
	}

	status, err := h.mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != models.SyncStateFailed || status.Running {
		t.Errorf("State = %v, Running = %v, want failed, false", status.State, status.Running)
	}
	if status.LastRun == nil || status.LastRun.RunID != res.RunID {
		t.Errorf("LastRun = %+v, want the failed run", status.LastRun)
	}
	if status.Watermark != nil {
		t.Errorf("Watermark = %v, want none", status.Watermark)
	}
	if got := h.sink.types(); len(got) != 2 || got[1] != models.EventSyncFailed {
		t.Errorf("events = %v, want started then failed", got)
	}

	// A failed run does not block the next one.
	h.fetcher.mu.Lock()
	delete(h.fetcher.fail, 0)
	h.fetcher.mu.Unlock()
	if _, err := h.mgr.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
}

func TestManager_DirectoryFailureFailsRun(t *testing.T) {
	h := newHarness(t, pagesOf(5))
	h.dir.loadErr = errors.New("customers table unavailable")

	if _, err := h.mgr.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want directory failure")
	}
	if len(h.fetcher.windows) != 0 {
		t.Error("feed fetched although the directory failed to load")
	}
}

func TestManager_RejectsOverlappingRuns(t *testing.T) {
	h := newHarness(t, pagesOf(2))
	h.writer.block = make(chan struct{})
	h.writer.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.Run(context.Background())
		done <- err
	}()
	<-h.writer.entered

	res, err := h.mgr.Run(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second Run() error = %v, want ErrSyncInProgress", err)
	}
	if res == nil || !res.Skipped {
		t.Errorf("second Run() result = %+v, want Skipped", res)
	}
	if _, err := h.mgr.TriggerRun(); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("TriggerRun() error = %v, want ErrSyncInProgress", err)
	}
	if err := h.mgr.ResetState(context.Background()); !errors.Is(err, ErrResetWhileRunning) {
		t.Errorf("ResetState() error = %v, want ErrResetWhileRunning", err)
	}
	if !h.mgr.IsRunning() {
		t.Error("IsRunning() = false during a run")
	}

	close(h.writer.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	status, _ := h.mgr.Status(context.Background())
	if len(status.History) != 1 {
		t.Errorf("history = %d entries, want 1 (skipped runs are not recorded)", len(status.History))
	}
}

func TestManager_TriggerRunRunsInBackground(t *testing.T) {
	h := newHarness(t, pagesOf(4))

	runID, err := h.mgr.TriggerRun()
	if err != nil {
		t.Fatalf("TriggerRun() error = %v", err)
	}
	if runID == "" {
		t.Fatal("TriggerRun() returned empty run id")
	}
	h.mgr.Wait()

	status, err := h.mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.LastRun == nil || status.LastRun.RunID != runID || !status.LastRun.Success {
		t.Errorf("LastRun = %+v, want successful run %s", status.LastRun, runID)
	}
	if status.State != models.SyncStateIdle {
		t.Errorf("State = %v, want idle", status.State)
	}
}

func TestManager_HistoryIsBoundedNewestFirst(t *testing.T) {
	h := newHarness(t, pagesOf(1))
	h.mgr.history = newHistory(2)

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := h.mgr.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() %d error = %v", i, err)
		}
		ids = append(ids, res.RunID)
	}

	status, _ := h.mgr.Status(context.Background())
	if len(status.History) != 2 {
		t.Fatalf("history = %d entries, want 2", len(status.History))
	}
	if status.History[0].RunID != ids[2] || status.History[1].RunID != ids[1] {
		t.Errorf("history order = [%s %s], want [%s %s]", status.History[0].RunID, status.History[1].RunID, ids[2], ids[1])
	}
}

func TestManager_ResetStateClearsWatermarkAndHistory(t *testing.T) {
	h := newHarness(t, pagesOf(2))
	if _, err := h.mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := h.mgr.ResetState(context.Background()); err != nil {
		t.Fatalf("ResetState() error = %v", err)
	}

	status, err := h.mgr.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.Watermark != nil || len(status.History) != 0 || status.LastRun != nil {
		t.Errorf("status after reset = %+v", status)
	}
}

func TestManager_LockHeldElsewhereSkips(t *testing.T) {
	h := newHarness(t, pagesOf(2))
	h.mgr.deps.Locker = denyLocker{}

	res, err := h.mgr.Run(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("Run() error = %v, want ErrSyncInProgress", err)
	}
	if !res.Skipped {
		t.Error("result not marked Skipped")
	}
	if len(h.sink.types()) != 0 {
		t.Errorf("events = %v, want none", h.sink.types())
	}
	if h.mgr.IsRunning() {
		t.Error("slot still held after lock rejection")
	}
}

func TestManager_ExplicitWindowsAndWatermark(t *testing.T) {
	wm := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		spec  window.Spec
		pages []source.Page
		want  time.Time
	}{
		{"date after watermark leaves it", window.Spec{Date: "2026-10-19"}, pagesOf(1), wm},
		{"lookback covering watermark advances", window.Spec{LookbackDays: 3}, pagesOf(1), fixedNow},
		{"date before watermark never moves it back", window.Spec{Date: "2026-10-01"}, nil, wm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.pages)
			if err := h.state.Set(context.Background(), wm); err != nil {
				t.Fatal(err)
			}
			if _, err := h.mgr.RunWith(context.Background(), tt.spec); err != nil {
				t.Fatalf("RunWith() error = %v", err)
			}
			if got := h.watermark(t); !got.Equal(tt.want) {
				t.Errorf("watermark = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_StartRunsOnStartAndStops(t *testing.T) {
	h := newHarness(t, pagesOf(1))
	h.mgr.cfg.RunOnStart = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.mgr.Start(ctx); err == nil {
		t.Error("second Start() error = nil")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, _ := h.mgr.Status(context.Background())
		if len(status.History) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial run did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.mgr.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := h.mgr.Stop(); err == nil {
		t.Error("second Stop() error = nil")
	}
}

func TestManager_TriggerAfterStopUsesFreshContext(t *testing.T) {
	h := newHarness(t, pagesOf(2))

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	if err := h.mgr.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	runID, err := h.mgr.TriggerRun()
	if err != nil {
		t.Fatalf("TriggerRun() after Stop error = %v", err)
	}
	h.mgr.Wait()

	status, err := h.mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.LastRun == nil || status.LastRun.RunID != runID || !status.LastRun.Success {
		t.Errorf("LastRun = %+v, want successful run %s", status.LastRun, runID)
	}
}

func TestManager_TriggerRefusedWhileStopping(t *testing.T) {
	h := newHarness(t, pagesOf(1))

	h.mgr.mu.Lock()
	h.mgr.stopping = true
	h.mgr.mu.Unlock()

	if _, err := h.mgr.TriggerRun(); !errors.Is(err, ErrManagerStopping) {
		t.Errorf("TriggerRun() error = %v, want ErrManagerStopping", err)
	}
	if h.mgr.IsRunning() {
		t.Error("refused trigger must not hold the run slot")
	}
	if err := h.mgr.Start(context.Background()); err == nil {
		t.Error("Start() while stopping error = nil")
	}
}

func TestManager_TriggerRacingStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, pagesOf(1))
		if err := h.mgr.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				_, err := h.mgr.TriggerRun()
				if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrManagerStopping) {
					t.Errorf("TriggerRun() error = %v", err)
					return
				}
			}
		}()

		if err := h.mgr.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		<-done
		h.mgr.Wait()
		if h.mgr.IsRunning() {
			t.Fatal("run slot still held after Wait")
		}
	}
}

func TestWatermarkTracker(t *testing.T) {
	wm := models.Watermark{LastSyncedAt: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	w := models.Window{Mode: models.ModeContinuous, Start: wm.LastSyncedAt.Add(-5 * time.Minute), End: fixedNow}
	tr := newWatermarkTracker(w, wm)

	calls := []models.CallEvent{
		{StartedAt: time.Date(2026, 10, 19, 9, 58, 0, 0, time.UTC)},
		{StartedAt: time.Date(2026, 10, 19, 11, 0, 0, 900_000_000, time.UTC)},
	}
	next, ok := tr.afterPage(calls)
	if !ok || !next.Equal(time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("afterPage() = %v, %v", next, ok)
	}
	tr.commit(next)

	if _, ok := tr.afterPage(calls[:1]); ok {
		t.Error("afterPage() moved the watermark backwards")
	}
	if _, ok := tr.afterPage(nil); ok {
		t.Error("afterPage() advanced on an empty page")
	}
	if end, ok := tr.drained(); !ok || !end.Equal(fixedNow) {
		t.Errorf("drained() = %v, %v", end, ok)
	}
}
