// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package models defines the shared data structures for beats, ingest
// payloads, and the status fan-out.
package models

// Beat is one R-peak as stored in the polar_raw measurement.
//
// Identity is (Device, Timestamp); rewriting the same identity merges
// fields. RRInterval is zero for synthetic inserted beats (no measured
// interval exists there). The canonical fields RRClean/HRClean/ArtifactType
// are zero-valued until the post-processor has classified the beat;
// ArtifactType is the authoritative "classified" marker.
type Beat struct {
	Device       string
	Timestamp    int64   // milliseconds since epoch
	RRInterval   float64 // ms; 0 when absent (synthetic inserted beats)
	HeartRate    float64 // device-reported bpm; 0 when absent
	Source       string  // opaque relay/client identifier
	Path         string  // "realtime" or "batch"
	RRClean      float64 // ms; 0 sentinel for absorbed beats
	HRClean      float64 // 60000 / RRClean rounded to 0.01
	ArtifactType string  // empty until classified
}

// Ingest path values.
const (
	PathRealtime = "realtime"
	PathBatch    = "batch"
)

// BeatPayload is the body of POST /beats.
type BeatPayload struct {
	Source      string     `json:"source,omitempty"`
	Device      string     `json:"device" validate:"required"`
	Timestamp   int64      `json:"timestamp,omitempty"`
	HeartRate   float64    `json:"heartRate,omitempty"`
	RRIntervals *[]float64 `json:"rrIntervals" validate:"required"`
	Posture     string     `json:"posture,omitempty"`
	RSSI        int        `json:"rssi,omitempty"`
}

// BatchPayload is the body of POST /beats/batch.
type BatchPayload struct {
	Source string       `json:"source,omitempty"`
	Device string       `json:"device" validate:"required"`
	Beats  *[]BatchBeat `json:"beats" validate:"required"`
}

// BatchBeat is one retroactively uploaded beat group. Timestamp is a
// pointer so that a beat without a numeric timestamp is rejected rather
// than silently landing at the epoch.
type BatchBeat struct {
	Timestamp   *int64    `json:"timestamp" validate:"required"`
	HeartRate   float64   `json:"heartRate,omitempty"`
	RRIntervals []float64 `json:"rrIntervals,omitempty"`
}

// BatchResult is the outcome of a batch deduplication pass.
type BatchResult struct {
	Received   int `json:"received"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
}

// PosturePayload is the body of POST /posture.
type PosturePayload struct {
	Source              string  `json:"source,omitempty"`
	Device              string  `json:"device,omitempty"`
	FromPosture         string  `json:"fromPosture" validate:"required"`
	ToPosture           string  `json:"toPosture" validate:"required"`
	FromDurationSeconds float64 `json:"fromDurationSeconds,omitempty"`
	Confidence          float64 `json:"confidence,omitempty"`
}

// StatusPayload is the body of POST /status.
type StatusPayload struct {
	Source      string             `json:"source,omitempty"`
	Device      string             `json:"device,omitempty"`
	Category    string             `json:"category" validate:"required"`
	Event       string             `json:"event" validate:"required"`
	Description string             `json:"description,omitempty"`
	Fields      map[string]float64 `json:"fields,omitempty"`
}

// RealtimeSample is one per-beat HRV reading for the live dashboard
// (polar_realtime measurement).
type RealtimeSample struct {
	Device    string
	Timestamp int64
	RMSSD     float64
	SDNN      float64
	PNN50     float64
	HR        int
}

// Summary is one five-minute HRV summary (polar_hrv_summary measurement).
// Timestamp is the end of the summary window.
type Summary struct {
	Device        string
	Posture       string // optional tag
	Timestamp     int64
	RMSSD         float64
	SDNN          float64
	PNN50         float64
	HeartRate     int
	SampleCount   int
	ArtifactCount int
}

// DeviceStatus is one device's entry in a status snapshot.
type DeviceStatus struct {
	Device      string    `json:"device"`
	TotalBeats  int64     `json:"totalBeats"`
	LastBeatMs  int64     `json:"lastBeatMs,omitempty"`
	HeartRate   int       `json:"heartRate,omitempty"`
	RMSSD       float64   `json:"rmssd,omitempty"`
	RMSSDSeries []float64 `json:"rmssdSeries,omitempty"`
	Posture     string    `json:"posture,omitempty"`
}

// StatusSnapshot is the full hub state broadcast to SSE listeners.
type StatusSnapshot struct {
	Timestamp int64          `json:"timestamp"`
	StartedMs int64          `json:"startedMs"`
	Devices   []DeviceStatus `json:"devices"`
}
