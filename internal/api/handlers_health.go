// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package api

import (
	"context"
	"net/http"
	"time"
)

// readyCheckTimeout bounds the state store probe.
const readyCheckTimeout = 2 * time.Second

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status":         "alive",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
// Returns 200 when the watermark can be read, 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "State store is not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	if _, err := h.state.Get(ctx); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "State store is unreachable", err)
		return
	}

	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}
