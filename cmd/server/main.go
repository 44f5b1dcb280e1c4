// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/callsync/internal/api"
	"github.com/tomtom215/callsync/internal/auth"
	"github.com/tomtom215/callsync/internal/config"
	"github.com/tomtom215/callsync/internal/logging"
	"github.com/tomtom215/callsync/internal/supervisor"
	"github.com/tomtom215/callsync/internal/supervisor/services"
	ws "github.com/tomtom215/callsync/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides "+config.ConfigPathEnvVar+")")
	issueToken := flag.String("issue-token", "", "print a control API token for `subject` and exit")
	flag.Parse()

	if *configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, *configPath); err != nil {
			logging.Fatal().Err(err).Msg("Failed to set config path")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if *issueToken != "" {
		if err := printToken(os.Stdout, &cfg.Security, *issueToken); err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	logging.Info().Msg("Starting Callsync with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := buildApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer core.Close()

	tokens, err := auth.NewJWTManager(&cfg.Security)
	switch {
	case errors.Is(err, auth.ErrNoSecret):
		logging.Warn().Msg("API_SECRET is not set: sync trigger and reset are unauthenticated")
	case err != nil:
		logging.Fatal().Err(err).Msg("Failed to initialize token validation")
	default:
		logging.Info().Str("issuer", cfg.Security.Issuer).Msg("Bearer token authentication enabled for mutating routes")
	}

	hub := ws.NewHub()
	core.events.Add("websocket", hub)

	handler := api.NewHandler(core.manager, core.state)
	router := api.NewRouter(
		handler,
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)),
		tokens,
		ws.Handler(hub, ws.NewUpgrader(cfg.Server.CORSOrigins)),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout + 5*time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if core.subscriber != nil {
		tree.AddMessagingService(services.NewEventLogService(core.subscriber, cfg.Events.Topic))
	}

	if cfg.Sync.Enabled {
		tree.AddSyncService(services.NewSyncService(core.manager))
		logging.Info().Dur("interval", cfg.Sync.Interval).Msg("Sync manager added to supervisor tree")
	} else {
		logging.Info().Msg("Scheduled sync disabled (SYNC_ENABLED=false): runs only via the control API")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, shutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
