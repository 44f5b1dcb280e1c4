// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/callsync/internal/auth"
	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/destination"
	"github.com/tomtom215/callsync/internal/events"
	"github.com/tomtom215/callsync/internal/identity"
	"github.com/tomtom215/callsync/internal/lock"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/phone"
	"github.com/tomtom215/callsync/internal/retry"
	"github.com/tomtom215/callsync/internal/source"
	"github.com/tomtom215/callsync/internal/statestore"
	syncmgr "github.com/tomtom215/callsync/internal/sync"
	"github.com/tomtom215/callsync/internal/window"
)

// app holds the components main wires into the supervisor tree and closes
// on exit.
type app struct {
	manager    *syncmgr.Manager
	state      statestore.Store
	locker     lock.Locker
	publisher  *events.Publisher
	subscriber message.Subscriber
	events     *events.Fanout
}

// buildApp constructs the sync pipeline from cfg. On error everything opened
// so far is closed.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{events: events.NewFanout()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	policy := retry.FromConfig(cfg.Retry)

	feed := source.NewClient(cfg.Source)
	pages := source.NewPaginator(feed, policy, cfg.Source.MaxPages)
	logging.Info().
		Str("source", cfg.Source.BaseURL).
		Int("page_limit", cfg.Source.PageLimit).
		Int("max_pages", cfg.Source.MaxPages).
		Msg("Call feed client configured")

	tables := destination.NewTableClient(cfg.Destination)
	writer := destination.NewWriter(tables, cfg.Destination, cfg.Fields, policy)
	directory := identity.NewResolver(
		tables,
		cfg.Destination.CustomersTable,
		cfg.Fields.CustomerPhone,
		phone.NewNormalizer(cfg.Sync.DefaultRegion),
		policy,
	)
	logging.Info().
		Str("base_id", cfg.Destination.BaseID).
		Str("calls_table", cfg.Destination.CallsTable).
		Str("customers_table", cfg.Destination.CustomersTable).
		Float64("requests_per_second", cfg.Destination.RequestsPerSecond).
		Msg("Table store client configured")

	if a.state, err = statestore.Open(cfg.State); err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	logging.Info().Str("backend", cfg.State.Backend).Msg("Watermark store opened")

	if a.locker, err = lock.New(ctx, cfg.Lock); err != nil {
		return nil, fmt.Errorf("open run lock: %w", err)
	}
	if cfg.Lock.RedisAddr != "" {
		logging.Info().Str("addr", cfg.Lock.RedisAddr).Str("key", cfg.Lock.Key).Msg("Distributed run lock enabled")
	}

	if a.publisher, a.subscriber, err = events.New(cfg.Events); err != nil {
		return nil, fmt.Errorf("open event publisher: %w", err)
	}
	a.events.Add("watermill", a.publisher)
	logging.Info().
		Str("topic", cfg.Events.Topic).
		Bool("nats", cfg.Events.NATSURL != "").
		Msg("Lifecycle event publisher ready")

	a.manager = syncmgr.NewManager(cfg.Sync, syncmgr.Deps{
		Windows:   window.NewResolver(cfg.Sync),
		Pages:     pages,
		Directory: directory,
		Writer:    writer,
		State:     a.state,
		Locker:    a.locker,
		Events:    a.events,
	})
	return a, nil
}

// Close releases the publisher, lock and state store. Nil fields are skipped.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing run lock")
		}
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}
}

// printToken writes a signed control API token for subject to w.
func printToken(w io.Writer, cfg *config.SecurityConfig, subject string) error {
	tokens, err := auth.NewJWTManager(cfg)
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
