// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package api provides the HTTP ingest surface using Chi router.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/polarhub/internal/events"
	"github.com/tomtom215/polarhub/internal/hub"
	"github.com/tomtom215/polarhub/internal/metrics"
)

// Handler carries the ingest dependencies.
type Handler struct {
	hub          *hub.Hub
	bus          *events.Bus
	maxBodyBytes int64
}

// NewHandler creates the API handler.
func NewHandler(h *hub.Hub, bus *events.Bus, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 << 20
	}
	return &Handler{
		hub:          h,
		bus:          bus,
		maxBodyBytes: maxBodyBytes,
	}
}

// Routes builds the route tree.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	// Ingest endpoints: request metrics plus a permissive per-IP rate
	// limit (the relay posts about once per second per device).
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(1000, time.Minute))
		r.Use(prometheusMetrics)

		r.Post("/beats", h.PostBeats)
		r.Post("/beats/batch", h.PostBeatsBatch)
		r.Post("/posture", h.PostPosture)
		r.Post("/status", h.PostStatus)
		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)
	})

	// Long-lived SSE stream stays outside the latency histogram.
	r.Get("/events", h.Events)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// requestID propagates or assigns an X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// prometheusMetrics records request counts and latency per route pattern.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
