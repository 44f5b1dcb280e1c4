// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package source reads the telephony provider's call feed.
//
// The feed is a cursor-paginated GET endpoint:
//
//	GET {base}/v1/calls?start=RFC3339&end=RFC3339&limit=50&cursor=opaque
//	{"data": [...calls...], "cursor": "next-or-empty"}
//
// An absent or empty cursor marks the last page.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/remote"
)

// MaxPageSize is the provider's hard cap on items per page.
const MaxPageSize = 50

const serviceName = "call-feed"

// Page is one response of the call feed.
type Page struct {
	Calls      []models.CallEvent
	NextCursor string
}

// Fetcher fetches one page of calls in [start, end).
type Fetcher interface {
	FetchPage(ctx context.Context, start, end time.Time, cursor string) (Page, error)
}

// Client is the HTTP call feed client.
type Client struct {
	baseURL string
	apiKey  string
	limit   int
	http    *http.Client
	breaker *remote.Breaker
}

// NewClient creates a feed client with a per-request timeout and circuit breaker.
func NewClient(cfg config.SourceConfig) *Client {
	limit := cfg.PageLimit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limit:   limit,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: remote.NewBreaker(serviceName),
	}
}

type wireCall struct {
	ID             string     `json:"id"`
	Direction      string     `json:"direction"`
	StartedAt      time.Time  `json:"started_at"`
	ConnectedAt    *time.Time `json:"connected_at"`
	EndedAt        *time.Time `json:"ended_at"`
	ExternalNumber string     `json:"external_number"`
	RecordingURL   string     `json:"recording_url"`
	Duration       *int64     `json:"duration"`
}

type wirePage struct {
	Data   []wireCall `json:"data"`
	Cursor *string    `json:"cursor"`
}

// FetchPage implements Fetcher.
func (c *Client) FetchPage(ctx context.Context, start, end time.Time, cursor string) (Page, error) {
	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("limit", strconv.Itoa(c.limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/calls?"+params.Encode(), http.NoBody)
	if err != nil {
		return Page{}, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	wp, err := remote.Execute(c.breaker, func() (*wirePage, error) {
		var wp wirePage
		if err := remote.Do(ctx, c.http, serviceName, req, &wp); err != nil {
			return nil, err
		}
		return &wp, nil
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{Calls: make([]models.CallEvent, 0, len(wp.Data))}
	if wp.Cursor != nil {
		page.NextCursor = *wp.Cursor
	}
	for i := range wp.Data {
		page.Calls = append(page.Calls, toCallEvent(&wp.Data[i]))
	}
	return page, nil
}

func toCallEvent(w *wireCall) models.CallEvent {
	ev := models.CallEvent{
		ID:            w.ID,
		Direction:     models.Direction(strings.ToLower(w.Direction)),
		StartedAt:     w.StartedAt.UTC(),
		ExternalPhone: strings.TrimSpace(w.ExternalNumber),
		RecordingURL:  w.RecordingURL,
	}
	if w.ConnectedAt != nil && !w.ConnectedAt.IsZero() {
		t := w.ConnectedAt.UTC()
		ev.ConnectedAt = &t
	}
	if w.EndedAt != nil && !w.EndedAt.IsZero() {
		t := w.EndedAt.UTC()
		ev.EndedAt = &t
	}

	switch {
	case w.Duration != nil && *w.Duration >= 0:
		ev.DurationSeconds = *w.Duration
	case ev.EndedAt != nil:
		if d := int64(ev.EndedAt.Sub(ev.StartedAt).Seconds()); d > 0 {
			ev.DurationSeconds = d
		}
	}
	return ev
}
