// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package source

import (
	"context"
	"fmt"

	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/retry"
)

// PageFunc handles one fetched page. Returning an error stops pagination and
// is returned from Each.
type PageFunc func(ctx context.Context, pageNum int, calls []models.CallEvent) error

// Summary describes how pagination ended.
type Summary struct {
	Pages int
	Calls int

	// Partial is set when a page after the first could not be fetched;
	// PageErr holds that error.
	Partial bool
	PageErr error

	// Truncated is set when pagination stopped with more data possibly
	// available: MaxPages was reached or the feed repeated a cursor.
	Truncated bool
}

// Paginator walks the feed for one window, one page at a time.
type Paginator struct {
	fetcher  Fetcher
	policy   retry.Policy
	maxPages int
}

// NewPaginator creates a paginator. maxPages <= 0 means 1.
func NewPaginator(f Fetcher, policy retry.Policy, maxPages int) *Paginator {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Paginator{fetcher: f, policy: policy, maxPages: maxPages}
}

// Each fetches pages of w in cursor order and calls fn for each. A failure on
// the first page is returned. A failure on a later page ends pagination and
// is reported through Summary.Partial with a nil error, keeping the pages
// already handled.
func (p *Paginator) Each(ctx context.Context, w models.Window, fn PageFunc) (Summary, error) {
	var sum Summary
	cursor := ""

	for pageNum := 1; ; pageNum++ {
		if pageNum > p.maxPages {
			sum.Truncated = true
			logging.Ctx(ctx).Warn().Int("max_pages", p.maxPages).Str("cursor", cursor).Msg("Page limit reached, remaining calls deferred to the next run")
			return sum, nil
		}

		page, err := retry.Do(ctx, "source.fetch_page", p.policy, func(ctx context.Context) (Page, error) {
			return p.fetcher.FetchPage(ctx, w.Start, w.End, cursor)
		})
		if err != nil {
			if pageNum == 1 {
				return sum, fmt.Errorf("fetch first page: %w", err)
			}
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Partial = true
			sum.PageErr = err
			logging.Ctx(ctx).Error().Err(err).Int("page", pageNum).Int("pages_processed", sum.Pages).Msg("Page fetch failed, keeping pages already processed")
			return sum, nil
		}
		metrics.SyncPagesFetched.Inc()

		if err := fn(ctx, pageNum, page.Calls); err != nil {
			return sum, err
		}
		sum.Pages++
		sum.Calls += len(page.Calls)

		if page.NextCursor == "" {
			return sum, nil
		}
		if page.NextCursor == cursor {
			sum.Truncated = true
			logging.Ctx(ctx).Warn().Str("cursor", cursor).Msg("Feed returned the same cursor twice, stopping pagination")
			return sum, nil
		}
		cursor = page.NextCursor
	}
}
