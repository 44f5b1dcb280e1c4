// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package supervisor provides process supervision for Callsync using suture v4.

The tree isolates failures by layer:

	RootSupervisor ("callsync")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── EventLogService (in-process event bus only)
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (orchestrator schedule loop)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed HTTP server restarts without interrupting a run in progress, and a
failing schedule loop backs off without taking the status API down.

Supervisor events (service start, failure, backoff, restart) are logged
through sutureslog with the application slog logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)

Serve blocks until ctx is cancelled. Services that do not stop within
ShutdownTimeout are listed by UnstoppedServiceReport.
*/
package supervisor
