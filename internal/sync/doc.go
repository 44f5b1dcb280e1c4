// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package sync orchestrates call synchronization runs.

A run resolves its time window, loads the customer directory, then walks the
call feed page by page. Each page is classified against the directory,
written to the calls table and followed by a watermark update, so a crashed
run resumes from the last page it finished.

Manager lifecycle:

  - Run / RunWith: synchronous run; rejected with ErrSyncInProgress while
    another run holds the slot (in this process or, with a Redis lock,
    in any replica).
  - TriggerRun: claims the slot synchronously and runs in the background.
  - Start / Stop: periodic schedule at sync.interval, optionally with an
    initial run.
  - Status / ResetState: status snapshot and watermark plus history reset.

State machine:

	idle ──Run──▶ running ──ok──▶ idle
	                  │
	                  └──error──▶ failed ──Run──▶ running

Every transition is published to the configured EventSink as sync.started,
sync.completed or sync.failed. Sink errors never affect the run.

Watermark rules:

  - After a page's writes are attempted, the watermark moves to the latest
    call start seen so far. It never moves backwards.
  - When the feed is drained the watermark moves to the window end.
  - A partial or truncated run keeps the last per-page value, and the next
    continuous run resumes from it minus the backfill grace.
  - Time-range, date and look-back windows only move the watermark when
    they start at or before it, so a window far in the future cannot open a
    gap the continuous mode would then skip.
*/
package sync
