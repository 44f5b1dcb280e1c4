// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package testinfra provides test doubles for the services Callsync talks to.
//
// # In-process fakes
//
// FakeCallFeed and FakeTableStore are httptest servers that speak the call
// feed and table store wire formats. They record every request and accept
// injected failures, so package tests can drive the real HTTP clients:
//
//	func TestUpsertReplay(t *testing.T) {
//	    store := testinfra.NewFakeTableStore(t, "app123")
//	    client := destination.NewTableClient(config.DestinationConfig{
//	        BaseURL: store.URL(), BaseID: "app123", ...
//	    })
//	    // ...
//	    if got := len(store.Records("Calls")); got != 1 { ... }
//	}
//
// # Containers
//
// Files behind the integration build tag start real dependencies (Redis)
// with testcontainers-go. They require Docker and skip when it is missing:
//
//	go test -tags integration ./internal/lock/...
package testinfra
