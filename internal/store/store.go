// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package store provides the typed time-series store adapter over the five
// Polarhub measurements. Point identity is (measurement, tags, timestamp);
// writing the same identity again merges fields, so every write is
// idempotent and concurrent writers can only race on last-writer-wins for
// the same field.
//
// The production implementation (Influx) speaks the InfluxDB 1.x HTTP API:
// millisecond-precision line protocol on /write and InfluxQL on /query.
// Memory implements the same semantics in-process for tests and for
// development without a database.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/polarhub/internal/models"
)

// Measurement names.
const (
	MeasurementRaw      = "polar_raw"
	MeasurementRealtime = "polar_realtime"
	MeasurementSummary  = "polar_hrv_summary"
	MeasurementPosture  = "polar_posture"
	MeasurementStatus   = "polar_relay_status"
)

// maxPointsPerWrite bounds one write request; larger beat sets are split.
const maxPointsPerWrite = 5000

// ErrUnavailable marks a write or query that failed against the backing
// store (timeout, connection refused, non-2xx response). Handlers map it to
// their own surface per the error policy.
var ErrUnavailable = errors.New("store unavailable")

// Store is the typed write/query interface over the five measurements.
//
// All operations are suspension points bounded by the configured request
// deadline. Query results are ordered oldest-first.
type Store interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// WriteBeats persists raw beats (rr_interval, heart_rate, source,
	// path) keyed by (device, timestamp). Large slices are chunked.
	WriteBeats(ctx context.Context, beats []models.Beat) error

	// WriteCanonical merge-writes the post-processor's canonical fields
	// (rr_clean, hr_clean, artifact_type) onto the beat at ts. Writing to
	// a timestamp with no prior point creates one, which is how synthetic
	// missed_inserted beats materialize.
	WriteCanonical(ctx context.Context, device string, ts int64, rrClean, hrClean float64, artifactType string) error

	// WriteRealtime persists one per-beat HRV sample for the dashboard.
	WriteRealtime(ctx context.Context, s models.RealtimeSample) error

	// WriteSummary persists one five-minute HRV summary.
	WriteSummary(ctx context.Context, s models.Summary) error

	// WritePosture persists a posture transition at ts.
	WritePosture(ctx context.Context, ts int64, p models.PosturePayload) error

	// WriteStatus persists an allow-listed relay status event at ts.
	WriteStatus(ctx context.Context, ts int64, p models.StatusPayload) error

	// QueryRange returns all raw beats of the device with
	// startMs <= timestamp <= endMs.
	QueryRange(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error)

	// QueryBefore returns up to limit raw beats with timestamp < beforeMs
	// and rr_interval > 0, the newest such beats, ordered oldest-first.
	QueryBefore(ctx context.Context, device string, beforeMs int64, limit int) ([]models.Beat, error)

	// QueryAfter returns up to limit raw beats with timestamp > afterMs
	// and rr_interval > 0, ordered oldest-first.
	QueryAfter(ctx context.Context, device string, afterMs int64, limit int) ([]models.Beat, error)

	// QueryClean returns raw beats with rr_clean > 0 and
	// startMs <= timestamp < endMs.
	QueryClean(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error)

	// LastCleanTimestamp returns the newest timestamp carrying a positive
	// rr_clean, or ok=false when the device has no classified beats.
	LastCleanTimestamp(ctx context.Context, device string) (int64, bool, error)
}
