// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/callsync/internal/models"
	"github.com/tomtom215/callsync/internal/retry"
)

// scriptedFetcher returns one scripted response per call, keyed by cursor.
type scriptedFetcher struct {
	mu      sync.Mutex
	pages   map[string]Page
	errs    map[string]error
	cursors []string
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _, _ time.Time, cursor string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if err, ok := f.errs[cursor]; ok {
		return Page{}, err
	}
	return f.pages[cursor], nil
}

func calls(prefix string, n int) []models.CallEvent {
	out := make([]models.CallEvent, n)
	for i := range out {
		out[i] = models.CallEvent{ID: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}
}

var testWindow = models.Window{Start: time.Unix(0, 0), End: time.Unix(3600, 0)}

func TestEach_FollowsCursorsUntilExhausted(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]Page{
		"":   {Calls: calls("a", 2), NextCursor: "c1"},
		"c1": {Calls: calls("b", 2), NextCursor: "c2"},
		"c2": {Calls: calls("c", 1)},
	}}

	var seen []int
	sum, err := NewPaginator(f, fastPolicy(1), 10).Each(context.Background(), testWindow, func(_ context.Context, n int, cs []models.CallEvent) error {
		seen = append(seen, len(cs))
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error = %v", err)
	}
	if len(f.cursors) != 3 {
		t.Errorf("fetches = %d (%v), want 3", len(f.cursors), f.cursors)
	}
	if sum.Pages != 3 || sum.Calls != 5 || sum.Partial || sum.Truncated {
		t.Errorf("summary = %+v", sum)
	}
	if len(seen) != 3 || seen[0] != 2 || seen[2] != 1 {
		t.Errorf("pages seen = %v", seen)
	}
}

func TestEach_FirstPageFailureAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("feed down")
	f := &scriptedFetcher{errs: map[string]error{"": boom}}

	called := false
	_, err := NewPaginator(f, fastPolicy(3), 10).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		called = true
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Each() error = %v, want %v", err, boom)
	}
	if called {
		t.Error("page callback should not run")
	}
	if len(f.cursors) != 3 {
		t.Errorf("first page attempts = %d, want 3 (retried)", len(f.cursors))
	}
}

func TestEach_LaterPageFailureIsPartial(t *testing.T) {
	t.Parallel()

	boom := errors.New("502 bad gateway")
	f := &scriptedFetcher{
		pages: map[string]Page{"": {Calls: calls("a", 50), NextCursor: "c1"}},
		errs:  map[string]error{"c1": boom},
	}

	sum, err := NewPaginator(f, fastPolicy(2), 10).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error = %v, want nil for a partial run", err)
	}
	if !sum.Partial || !errors.Is(sum.PageErr, boom) {
		t.Errorf("summary = %+v, want partial with page error", sum)
	}
	if sum.Pages != 1 || sum.Calls != 50 {
		t.Errorf("Pages=%d Calls=%d, want 1 and 50", sum.Pages, sum.Calls)
	}
}

func TestEach_StopsAtMaxPages(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]Page{
		"":   {Calls: calls("a", 1), NextCursor: "c1"},
		"c1": {Calls: calls("b", 1), NextCursor: "c2"},
		"c2": {Calls: calls("c", 1), NextCursor: "c3"},
	}}

	sum, err := NewPaginator(f, fastPolicy(1), 2).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Truncated || sum.Pages != 2 {
		t.Errorf("summary = %+v, want truncated after 2 pages", sum)
	}
	if len(f.cursors) != 2 {
		t.Errorf("fetches = %d, want 2", len(f.cursors))
	}
}

func TestEach_ExactlyMaxPagesIsNotTruncated(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]Page{
		"":   {Calls: calls("a", 1), NextCursor: "c1"},
		"c1": {Calls: calls("b", 1)},
	}}
	sum, err := NewPaginator(f, fastPolicy(1), 2).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		return nil
	})
	if err != nil || sum.Truncated {
		t.Errorf("Each() = (%+v, %v), want complete", sum, err)
	}
}

func TestEach_RepeatedCursorStops(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]Page{
		"":      {Calls: calls("a", 1), NextCursor: "stuck"},
		"stuck": {Calls: calls("b", 1), NextCursor: "stuck"},
	}}
	sum, err := NewPaginator(f, fastPolicy(1), 100).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Pages != 2 {
		t.Errorf("Pages = %d, want 2", sum.Pages)
	}
	if !sum.Truncated {
		t.Error("Truncated = false, want true so the watermark does not jump to the window end")
	}
}

func TestEach_CallbackErrorPropagates(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]Page{"": {Calls: calls("a", 1), NextCursor: "c1"}}}
	stop := errors.New("watermark write failed")

	_, err := NewPaginator(f, fastPolicy(1), 10).Each(context.Background(), testWindow, func(context.Context, int, []models.CallEvent) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Each() error = %v, want %v", err, stop)
	}
}
