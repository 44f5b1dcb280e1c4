// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package models

import "time"

// Direction of a call relative to the business line.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallEvent is one call as reported by the telephony feed. It is never
// mutated after the source client builds it.
type CallEvent struct {
	// ID is the provider's stable call identifier and the destination upsert key.
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	StartedAt time.Time `json:"started_at"`

	// ConnectedAt is nil when the call was not answered.
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	// ExternalPhone is the other party's number exactly as the provider sent it.
	ExternalPhone   string `json:"external_phone,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// Answered reports whether the call was connected.
func (c *CallEvent) Answered() bool {
	return c.ConnectedAt != nil
}

// DirectoryEntry is one row of the customer directory table.
type DirectoryEntry struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

// TransformedCallRecord is a call ready to be written to the destination.
//
// When the call has an external phone exactly one of CustomerIDs and
// UnmatchedPhone is set. When it has none, neither is.
type TransformedCallRecord struct {
	Call           CallEvent
	CustomerIDs    []string
	UnmatchedPhone string
}

// Matched reports whether the call was linked to a directory entry.
func (r *TransformedCallRecord) Matched() bool {
	return len(r.CustomerIDs) > 0
}

// Unmatched reports whether the call had a phone that matched nobody.
func (r *TransformedCallRecord) Unmatched() bool {
	return !r.Matched() && r.UnmatchedPhone != ""
}

// Watermark is the persisted sync progress. The zero value means never synced.
type Watermark struct {
	LastSyncedAt  time.Time `json:"last_synced_at"`
	LastSyncedISO string    `json:"last_synced_iso,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsZero reports whether no sync has been recorded.
func (w Watermark) IsZero() bool {
	return w.LastSyncedAt.IsZero()
}
