// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package metrics provides Prometheus instrumentation for the beat
// pipeline, exposed at /metrics in Prometheus text format.
//
// Pipeline metrics:
//   - polarhub_beats_ingested_total{path}: raw beats written per ingest path
//   - polarhub_batch_duplicates_total: batch points skipped as duplicates
//   - polarhub_artifacts_total{type}: artifacts classified by the post-processor
//   - polarhub_postprocess_duration_seconds: per-device processing time
//   - polarhub_summaries_written_total: five-minute summaries written
//   - polarhub_store_write_errors_total{measurement}: best-effort write failures
//
// HTTP metrics:
//   - polarhub_http_requests_total{method,endpoint,status}
//   - polarhub_http_request_duration_seconds{method,endpoint}
//
// Gauges:
//   - polarhub_devices_active: devices with in-memory state
//   - polarhub_sse_clients: connected event-stream listeners
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BeatsIngested counts raw beats written, labeled by ingest path.
	BeatsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polarhub_beats_ingested_total",
		Help: "Raw beats written to the store by ingest path",
	}, []string{"path"})

	// BatchDuplicates counts batch points skipped by the deduplicator.
	BatchDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polarhub_batch_duplicates_total",
		Help: "Batch upload points skipped as duplicates",
	})

	// Artifacts counts classified artifacts by type.
	Artifacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polarhub_artifacts_total",
		Help: "Artifacts classified by the post-processor",
	}, []string{"type"})

	// PostprocessDuration observes per-device post-processing time.
	PostprocessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polarhub_postprocess_duration_seconds",
		Help:    "Duration of one device's post-processing pass",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
	})

	// SummariesWritten counts five-minute summaries written.
	SummariesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polarhub_summaries_written_total",
		Help: "Five-minute HRV summaries written",
	})

	// StoreWriteErrors counts best-effort write failures by measurement.
	StoreWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polarhub_store_write_errors_total",
		Help: "Store write failures swallowed by the pipeline",
	}, []string{"measurement"})

	// HTTPRequests counts requests by method, endpoint and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polarhub_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "endpoint", "status"})

	// HTTPDuration observes request latency by method and endpoint.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polarhub_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method", "endpoint"})

	// DevicesActive tracks devices with in-memory state.
	DevicesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polarhub_devices_active",
		Help: "Devices with in-memory state",
	})

	// SSEClients tracks connected event-stream listeners.
	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polarhub_sse_clients",
		Help: "Connected /events listeners",
	})
)
