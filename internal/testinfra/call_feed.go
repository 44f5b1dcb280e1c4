// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package testinfra

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// FeedCall is one call in the feed's wire format.
type FeedCall struct {
	ID             string     `json:"id"`
	Direction      string     `json:"direction"`
	StartedAt      time.Time  `json:"started_at"`
	ConnectedAt    *time.Time `json:"connected_at"`
	EndedAt        *time.Time `json:"ended_at"`
	ExternalNumber string     `json:"external_number"`
	RecordingURL   string     `json:"recording_url,omitempty"`
	Duration       *int64     `json:"duration,omitempty"`
}

// FakeCallFeed serves a fixed sequence of pages from /v1/calls. Page i is
// reached with cursor "c<i>"; the last page carries no cursor.
type FakeCallFeed struct {
	Server *httptest.Server

	mu       sync.Mutex
	pages    [][]FeedCall
	failPage map[int]int
	captures []RequestCapture
}

// NewFakeCallFeed starts a feed serving pages and closes it when t ends.
func NewFakeCallFeed(t *testing.T, pages ...[]FeedCall) *FakeCallFeed {
	t.Helper()

	f := &FakeCallFeed{pages: pages, failPage: make(map[int]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server URL.
func (f *FakeCallFeed) URL() string {
	return f.Server.URL
}

// FailPage makes every request for page index i (zero-based) fail with status.
func (f *FakeCallFeed) FailPage(i, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPage[i] = status
}

// Captures returns all requests received so far.
func (f *FakeCallFeed) Captures() []RequestCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RequestCapture, len(f.captures))
	copy(out, f.captures)
	return out
}

func (f *FakeCallFeed) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.captures = append(f.captures, RequestCapture{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		At:     time.Now(),
	})

	if r.URL.Path != "/v1/calls" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	idx := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		if _, err := fmt.Sscanf(c, "c%d", &idx); err != nil || idx <= 0 || idx >= len(f.pages) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad cursor"})
			return
		}
	}
	if status, ok := f.failPage[idx]; ok {
		writeJSON(w, status, map[string]string{"error": "injected failure"})
		return
	}

	resp := map[string]interface{}{"data": []FeedCall{}}
	if idx < len(f.pages) && f.pages[idx] != nil {
		resp["data"] = f.pages[idx]
	}
	if idx+1 < len(f.pages) {
		resp["cursor"] = fmt.Sprintf("c%d", idx+1)
	}
	writeJSON(w, http.StatusOK, resp)
}
