// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

/*
Package middleware provides HTTP middleware shared by the control API.

  - RequestID: accepts or generates an X-Request-ID (UUID v4) and puts it in
    the logging context, so handler log lines carry request_id.
  - PrometheusMetrics: counts requests and observes latency per method,
    route pattern and status code.

Both are plain func(http.HandlerFunc) http.HandlerFunc and are adapted to
chi's r.Use in the api package:

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chiMiddleware(middleware.PrometheusMetrics))

PrometheusMetrics labels requests by the chi route pattern
("/api/v1/sync/status"), not the raw path, to keep label cardinality bounded.
Requests that match no route are labelled "unmatched".
*/
package middleware
