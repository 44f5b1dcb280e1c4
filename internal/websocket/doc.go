// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package websocket streams sync lifecycle events to connected clients.

The Hub is an events sink: every sync.started, sync.completed and
sync.failed event the orchestrator publishes is broadcast as

	{"type": "sync.completed", "data": {"type": "sync.completed", "run_id": "...", "result": {...}}}

Each Client runs a read pump (answers {"type":"ping"} with a pong, enforces
the read deadline) and a write pump (drains the send buffer, sends protocol
pings). A client whose buffer fills is disconnected rather than allowed to
stall the broadcast loop.

The hub runs under the supervisor through RunWithContext and closes every
client when its context ends.
*/
package websocket
