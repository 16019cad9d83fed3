// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package main is the entry point for the Polarhub server.
//
// Polarhub ingests heart-beat data from wearable chest-strap sensors
// (relayed over HTTP) and from retroactive mobile uploads, stores every
// beat in InfluxDB, and maintains two derived views: a low-latency per-beat
// HRV stream for the live dashboard and an artifact-corrected canonical
// stream with five-minute HRV summaries.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML, environment)
//  2. Store: InfluxDB 1.x HTTP adapter behind a circuit breaker
//     (or the in-memory store with -memory, for development)
//  3. Status bus: in-process pub/sub feeding the /events SSE stream
//  4. Hub: per-device state, real-time ingest, batch deduplication
//  5. Post-processor: deferred artifact classification and summaries
//  6. HTTP server: ingest surface plus /metrics
//
// The post-processor and HTTP server run under a suture supervision tree;
// SIGINT/SIGTERM cancel the tree's context for graceful shutdown.
//
// # Configuration
//
// Environment variables override config.yaml which overrides defaults:
//
//	INFLUX_HOST=localhost INFLUX_PORT=8086 INFLUX_DATABASE=polar_hub \
//	PORT=3000 ./polarhub
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/tomtom215/polarhub/internal/api"
	"github.com/tomtom215/polarhub/internal/config"
	"github.com/tomtom215/polarhub/internal/events"
	"github.com/tomtom215/polarhub/internal/hub"
	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/postprocess"
	"github.com/tomtom215/polarhub/internal/store"
	"github.com/tomtom215/polarhub/internal/supervisor"
)

func main() {
	memoryStore := flag.Bool("memory", false, "use the in-memory store instead of InfluxDB (development)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Starting Polarhub")

	var st store.Store
	if *memoryStore {
		logging.Warn().Msg("Using in-memory store; nothing is persisted")
		st = store.NewMemory()
	} else {
		st = store.NewBreaker(store.NewInflux(cfg.Influx), store.DefaultBreakerConfig())
		logging.Info().
			Str("url", cfg.Influx.URL()).
			Str("database", cfg.Influx.Database).
			Msg("Using InfluxDB store")
	}

	bus := events.New()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Status bus close failed")
		}
	}()

	beatHub := hub.New(st, bus, hub.Config{
		WindowSize:  cfg.HRV.RealtimeWindow,
		RMSSDBuffer: cfg.HRV.RMSSDBuffer,
	})
	processor := postprocess.NewManager(st, beatHub, postprocess.Config{
		Interval:          cfg.HRV.ProcessInterval,
		BufferMs:          cfg.HRV.BufferMs,
		SummaryIntervalMs: cfg.HRV.SummaryIntervalMs,
		ContextBeats:      91,
		MinSummaryBeats:   10,
	})
	beatHub.SetProcessor(processor)

	handler := api.NewHandler(beatHub, bus, cfg.Server.MaxBodyBytes)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // the SSE stream must outlive any write deadline
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddProcessingService(supervisor.NewManagerService(processor, "post-processor"))
	tree.AddAPIService(supervisor.NewHTTPService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}
	logging.Info().Msg("Polarhub stopped")
}
