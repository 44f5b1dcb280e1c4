// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package models defines the data structures shared across Callsync.

Model categories:

 1. Call data:
    - CallEvent: one call from the provider feed
    - DirectoryEntry: a customer record keyed by normalized phone
    - TransformedCallRecord: a call linked to a customer or carrying the
      normalized phone it failed to match
    - Watermark: the persisted resume point

 2. Sync runs:
    - Window: the [start, end) interval a run fetches, with its mode
    - SyncRunResult: counters and outcome of one run
    - SyncStatus: state, last run, watermark and bounded history
    - LifecycleEvent: published on run start, completion and failure

 3. API envelope:
    - APIResponse, Metadata, APIError

All time values are UTC instants. JSON tags are the wire format for the
control API, the state file and lifecycle events.
*/
package models
