// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/window"
)

// SyncService is the orchestrator surface the handlers drive.
// Implemented by sync.Manager.
type SyncService interface {
	Status(ctx context.Context) (*models.SyncStatus, error)
	TriggerRun() (string, error)
	TriggerRunWith(spec window.Spec) (string, error)
	ResetState(ctx context.Context) error
}

// StateChecker reads the watermark; readiness fails when it errors.
// Implemented by statestore.Store.
type StateChecker interface {
	Get(ctx context.Context) (models.Watermark, error)
}

// Handler holds the control API dependencies.
type Handler struct {
	sync      SyncService
	state     StateChecker
	startTime time.Time
}

// NewHandler creates the control API handlers.
func NewHandler(sync SyncService, state StateChecker) *Handler {
	return &Handler{
		sync:      sync,
		state:     state,
		startTime: time.Now(),
	}
}
