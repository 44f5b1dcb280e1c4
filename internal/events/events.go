// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

// Package events delivers sync lifecycle events to their sinks.
//
// The orchestrator publishes one event per transition (sync.started,
// sync.completed, sync.failed) to a single Sink. Fanout forwards each event
// to every registered sink: the watermill publisher on the lifecycle topic
// and the websocket hub. A failing sink is logged and counted; delivery to
// the others continues and the run is never affected.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/metrics"
	"github.com/tomtom215/callsync/internal/models"
)

// Sink receives lifecycle events.
type Sink interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event models.LifecycleEvent) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, event models.LifecycleEvent) error {
	return f(ctx, event)
}

// Encode returns the wire JSON of an event.
func Encode(event models.LifecycleEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return data, nil
}

// Decode parses wire JSON produced by Encode.
func Decode(data []byte) (models.LifecycleEvent, error) {
	var event models.LifecycleEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.LifecycleEvent{}, fmt.Errorf("decode lifecycle event: %w", err)
	}
	return event, nil
}

type namedSink struct {
	name string
	sink Sink
}

// Fanout delivers every event to all registered sinks in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []namedSink
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers sink under name, which labels its metrics and logs.
func (f *Fanout) Add(name string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Publish implements Sink. The returned error joins every sink failure.
func (f *Fanout) Publish(ctx context.Context, event models.LifecycleEvent) error {
	f.mu.RLock()
	sinks := make([]namedSink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		err := s.sink.Publish(ctx, event)
		metrics.RecordEventDelivery(s.name, err)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("sink", s.name).
				Str("event", string(event.Type)).
				Msg("Lifecycle event delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
