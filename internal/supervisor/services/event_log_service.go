// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/callsync/internal/events"
	"github.com/tomtom215/callsync/internal/logging"
)

// Subscriber is the subscribe half of a watermill Pub/Sub.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// EventLogService consumes lifecycle events from a topic and logs them.
type EventLogService struct {
	subscriber Subscriber
	topic      string
	name       string
}

// NewEventLogService creates a consumer for topic.
func NewEventLogService(subscriber Subscriber, topic string) *EventLogService {
	return &EventLogService{
		subscriber: subscriber,
		topic:      topic,
		name:       "event-log",
	}
}

// Serve subscribes and logs until ctx is done or the subscription closes.
// Undecodable payloads are acked and skipped so they are not redelivered.
func (e *EventLogService) Serve(ctx context.Context) error {
	messages, err := e.subscriber.Subscribe(ctx, e.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", e.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", e.topic)
			}
			e.handle(msg)
		}
	}
}

func (e *EventLogService) handle(msg *message.Message) {
	defer msg.Ack()

	event, err := events.Decode(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Skipping undecodable lifecycle event")
		return
	}

	entry := logging.Info().
		Str("event", string(event.Type)).
		Str("run_id", event.RunID).
		Time("at", event.Timestamp)
	if r := event.Result; r != nil {
		entry = entry.
			Bool("success", r.Success).
			Int("calls", r.TotalCalls).
			Int("written", r.RecordsWritten)
	}
	entry.Msg("Lifecycle event")
}

// String implements fmt.Stringer for logging.
func (e *EventLogService) String() string {
	return e.name
}
