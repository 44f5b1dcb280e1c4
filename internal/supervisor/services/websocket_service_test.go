// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/callsync/internal/websocket"
)

type fakeHub struct{ err error }

func (h *fakeHub) RunWithContext(ctx context.Context) error {
	if h.err != nil {
		return h.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubServicePropagatesResult(t *testing.T) {
	errHub := errors.New("hub crashed")
	svc := NewWebSocketHubService(&fakeHub{err: errHub})
	if err := svc.Serve(context.Background()); !errors.Is(err, errHub) {
		t.Errorf("Serve() error = %v, want %v", err, errHub)
	}
}

func TestWebSocketHubServiceRealHub(t *testing.T) {
	svc := NewWebSocketHubService(websocket.NewHub())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancel")
	}
}
