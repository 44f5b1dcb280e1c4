// Callsync - Telephony Call Mirroring for CRM Tables
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/callsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/callsync/internal/auth"
	"github.com/tomtom215/callsync/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	tokens        *auth.JWTManager
	websocket     http.Handler
}

// NewRouter creates a router. tokens and websocket may be nil; a nil tokens
// manager leaves mutating routes unauthenticated and a nil websocket handler
// omits the /ws route.
func NewRouter(handler *Handler, mw *ChiMiddleware, tokens *auth.JWTManager, websocket http.Handler) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
		tokens:        tokens,
		websocket:     websocket,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global to handle OPTIONS preflight
	r.Use(chiMiddleware(middleware.PrometheusMetrics))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		r.Get("/status", router.handler.SyncStatus)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitSync())
			r.Use(RequireToken(router.tokens))
			r.Post("/trigger", router.handler.SyncTrigger)
			r.Post("/reset", router.handler.SyncReset)
		})
	})

	if router.websocket != nil {
		r.With(router.chiMiddleware.RateLimit()).Get("/api/v1/ws", router.websocket.ServeHTTP)
	}

	r.Handle("/metrics", promhttp.Handler())

	return r
}
