// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package api provides the control and status HTTP surface using the Chi router.

Routes:

	GET  /api/v1/health/live    process is up
	GET  /api/v1/health/ready   state store reachable
	GET  /api/v1/sync/status    state, last run, watermark, history
	POST /api/v1/sync/trigger   start a run (202), 409 while one is active, 503 while stopping
	POST /api/v1/sync/reset     clear watermark and history, 409 while running
	GET  /api/v1/ws             websocket lifecycle stream
	GET  /metrics               Prometheus exposition

Trigger accepts an optional JSON body overriding the configured window:

	{"date": "2026-10-18"}
	{"lookback_days": 3}
	{"time_range_start": "09:00", "time_range_end": "12:00"}

Every JSON response uses the models.APIResponse envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "error": {"code": "SYNC_IN_PROGRESS", "message": "..."}, ...}

Middleware: request id, panic recovery, CORS (go-chi/cors), per-IP rate
limiting (go-chi/httprate), Prometheus instrumentation and, when
security.api_secret is set, an HS256 bearer token on trigger and reset.
*/
package api
