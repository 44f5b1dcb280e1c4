// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package services adapts Callsync components to suture's Serve pattern.

  - SyncService: sync.Manager Start/Stop. Stop waits for a run in progress.
  - HTTPServerService: *http.Server ListenAndServe/Shutdown.
  - WebSocketHubService: websocket.Hub RunWithContext.
  - EventLogService: consumes the in-process lifecycle topic and logs each
    event, so the bus has a reader and runs show up in the log stream even
    without websocket clients.

Each wrapper depends on a small interface rather than the concrete type and
names itself through fmt.Stringer for supervisor logs.
*/
package services
