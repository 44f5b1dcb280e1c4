// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package sync

import "github.com/tomtom215/callsync/internal/models"

// history is a bounded newest-first list of run results. Callers hold the
// manager mutex.
type history struct {
	size    int
	results []*models.SyncRunResult
}

func newHistory(size int) *history {
	return &history{size: size, results: make([]*models.SyncRunResult, 0, size)}
}

func (h *history) push(r *models.SyncRunResult) {
	if len(h.results) < h.size {
		h.results = append(h.results, nil)
	}
	copy(h.results[1:], h.results[:len(h.results)-1])
	h.results[0] = r
}

func (h *history) snapshot() []*models.SyncRunResult {
	out := make([]*models.SyncRunResult, len(h.results))
	copy(out, h.results)
	return out
}

func (h *history) clear() {
	h.results = h.results[:0]
}
