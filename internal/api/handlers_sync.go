// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	syncmgr "github.com/tomtom215/callsync/internal/sync"
	"github.com/tomtom215/callsync/internal/validation"
	"github.com/tomtom215/callsync/internal/window"
)

// TriggerRequest optionally overrides the configured window for one run.
type TriggerRequest struct {
	Date           string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LookbackDays   int    `json:"lookback_days,omitempty" validate:"gte=0,lte=366"`
	TimeRangeStart string `json:"time_range_start,omitempty" validate:"required_with=TimeRangeEnd,omitempty,hhmm"`
	TimeRangeEnd   string `json:"time_range_end,omitempty" validate:"required_with=TimeRangeStart,omitempty,hhmm"`
}

// Spec converts the request to a window spec.
func (t TriggerRequest) Spec() window.Spec {
	return window.Spec{
		Date:           t.Date,
		LookbackDays:   t.LookbackDays,
		TimeRangeStart: t.TimeRangeStart,
		TimeRangeEnd:   t.TimeRangeEnd,
	}
}

// TriggerResponse is returned with 202 Accepted.
type TriggerResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read sync status", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, status)
}

// SyncTrigger handles POST /api/v1/sync/trigger. The run continues after the
// response is written.
func (h *Handler) SyncTrigger(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTriggerRequest(w, r)
	if !ok {
		return
	}

	var (
		runID string
		err   error
	)
	if req == nil {
		runID, err = h.sync.TriggerRun()
	} else {
		runID, err = h.sync.TriggerRunWith(req.Spec())
	}

	switch {
	case errors.Is(err, syncmgr.ErrSyncInProgress):
		respondError(w, r, http.StatusConflict, ErrCodeSyncInProgress, "A sync is already running", nil)
	case errors.Is(err, syncmgr.ErrManagerStopping):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "Sync manager is shutting down", nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to start sync", err)
	default:
		respondSuccess(w, r, http.StatusAccepted, TriggerResponse{RunID: runID, Status: "started"})
	}
}

// SyncReset handles POST /api/v1/sync/reset
func (h *Handler) SyncReset(w http.ResponseWriter, r *http.Request) {
	err := h.sync.ResetState(r.Context())
	switch {
	case errors.Is(err, syncmgr.ErrResetWhileRunning):
		respondError(w, r, http.StatusConflict, ErrCodeSyncInProgress, "Cannot reset while a sync is running", nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to reset sync state", err)
	default:
		respondSuccess(w, r, http.StatusOK, map[string]string{"status": "reset"})
	}
}

// decodeTriggerRequest returns nil for an empty body. On failure it writes
// the error response and returns false.
func decodeTriggerRequest(w http.ResponseWriter, r *http.Request) (*TriggerRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body", err)
		return nil, false
	}
	if len(body) > maxRequestBodyBytes {
		respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large", nil)
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}

	var req TriggerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return nil, false
	}

	if err := validation.ValidateStruct(&req); err != nil {
		fields := map[string]string{}
		var verrs *validation.Errors
		if errors.As(err, &verrs) {
			for _, fe := range verrs.Fields {
				fields[fe.Field] = fe.Message
			}
		}
		respondValidationError(w, r, "Invalid window override", fields)
		return nil, false
	}
	if req.rangeInverted() {
		respondError(w, r, http.StatusUnprocessableEntity, ErrCodeValidationFailed, "time_range_end is before time_range_start", nil)
		return nil, false
	}
	return &req, true
}

// rangeInverted assumes both bounds already passed the hhmm check. Zero-padded
// HH:MM strings order lexically.
func (t TriggerRequest) rangeInverted() bool {
	return t.TimeRangeStart != "" && t.TimeRangeEnd < t.TimeRangeStart
}
