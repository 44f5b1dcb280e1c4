// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package main is the entry point for the Callsync server.

Callsync mirrors call events from a telephony provider's paginated feed into
a CRM table store, linking each call to a customer record by phone number.
A persistent watermark lets runs resume where the last one stopped.

# Application Architecture

Components run under a Suture v4 supervisor tree:

	RootSupervisor ("callsync")
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (lifecycle stream)
	│   └── Event Log (in-process bus only)
	├── SyncSupervisor ("sync-layer")
	│   └── Sync Manager (interval schedule)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (control API, /metrics)

Initialization order:

 1. Configuration: koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog with JSON/console output
 3. Clients: call feed and table store, each behind a circuit breaker
 4. State: watermark store (JSON file or BadgerDB)
 5. Lock: Redis run lock when configured, otherwise in-process only
 6. Events: watermill publisher (gochannel or NATS JetStream) + websocket hub
 7. Sync Manager
 8. HTTP router and supervisor tree

# Configuration

	SOURCE_BASE_URL=https://api.telephony.example/v1
	SOURCE_API_KEY=<key>
	DESTINATION_API_TOKEN=<token>
	DESTINATION_BASE_ID=app123
	SYNC_TIMEZONE=America/New_York
	SYNC_DEFAULT_REGION=US
	API_SECRET=<32+ chars>     # protects trigger/reset when set

A YAML file is read from -config, CONFIG_PATH, or the default paths.

# Flags

	-config <path>        config file (overrides CONFIG_PATH)
	-issue-token <sub>    print a bearer token for the control API and exit

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains for up to
10s, the sync manager waits for a run in progress to stop at its next page,
and services that miss the supervisor's shutdown timeout are reported.
*/
package main
