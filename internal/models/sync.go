// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package models

import "time"

// WindowMode identifies how a run's time window was chosen.
type WindowMode string

const (
	ModeTimeRange  WindowMode = "time_range"
	ModeDate       WindowMode = "date"
	ModeLookback   WindowMode = "lookback"
	ModeContinuous WindowMode = "continuous"
)

// Window is the half-open interval [Start, End) fetched by one run.
type Window struct {
	Mode     WindowMode `json:"mode"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	Timezone string     `json:"timezone"`
}

// Empty reports whether the window contains no instants.
func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}

// SyncRunResult is the outcome of one orchestrator run. Results live only in
// the in-memory history.
type SyncRunResult struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`

	// NoOp is set when the resolved window was empty.
	NoOp bool `json:"no_op,omitempty"`

	// Skipped is set when the request was rejected because a run was active.
	Skipped bool `json:"skipped,omitempty"`

	Mode        WindowMode `json:"mode,omitempty"`
	WindowStart time.Time  `json:"window_start,omitempty"`
	WindowEnd   time.Time  `json:"window_end,omitempty"`

	TotalCalls     int `json:"total_calls"`
	MatchedCalls   int `json:"matched_calls"`
	UnmatchedCalls int `json:"unmatched_calls"`
	NoPhoneCalls   int `json:"no_phone_calls"`
	PagesProcessed int `json:"pages_processed"`
	RecordsWritten int `json:"records_written"`
	FailedBatches  int `json:"failed_batches"`

	// Partial is set when a page after the first failed to fetch.
	Partial bool `json:"partial,omitempty"`

	// Truncated is set when pagination stopped at the page bound.
	Truncated bool `json:"truncated,omitempty"`

	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncState is the orchestrator's lifecycle state.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateRunning SyncState = "running"
	SyncStateFailed  SyncState = "failed"
)

// SyncStatus is the snapshot returned by the status surface.
type SyncStatus struct {
	State     SyncState        `json:"state"`
	Running   bool             `json:"running"`
	LastRun   *SyncRunResult   `json:"last_run,omitempty"`
	Watermark *Watermark       `json:"watermark,omitempty"`
	History   []*SyncRunResult `json:"history"`
}

// LifecycleEventType names a run lifecycle transition.
type LifecycleEventType string

const (
	EventSyncStarted   LifecycleEventType = "sync.started"
	EventSyncCompleted LifecycleEventType = "sync.completed"
	EventSyncFailed    LifecycleEventType = "sync.failed"
)

// LifecycleEvent is published on every run transition.
type LifecycleEvent struct {
	Type      LifecycleEventType `json:"type"`
	RunID     string             `json:"run_id"`
	Timestamp time.Time          `json:"timestamp"`
	Window    *Window            `json:"window,omitempty"`
	Result    *SyncRunResult     `json:"result,omitempty"`
}
