// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package auth issues and validates the bearer tokens that guard the mutating
control endpoints (trigger and reset).

Tokens are HS256 JWTs signed with security.api_secret. There are no users or
sessions: a token names an operator subject and expires after
security.token_ttl. Operators mint one with:

	callsync -issue-token ops@example.com

When no secret is configured the API leaves mutating routes open and no
JWTManager is built.
*/
package auth
