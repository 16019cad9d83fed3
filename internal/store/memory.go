// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/polarhub/internal/models"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store with the same point-identity semantics as
// the Influx adapter: (measurement, tags, timestamp) identity with
// merge-by-field rewrites. It backs unit tests and the -memory development
// mode.
type Memory struct {
	mu       sync.RWMutex
	points   map[string]*memPoint
	writeErr error
	queryErr error
}

type memPoint struct {
	measurement string
	tags        map[string]string
	ts          int64
	nums        map[string]float64
	strs        map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]*memPoint)}
}

// SetWriteError injects a write failure for every subsequent write; nil
// restores normal operation.
func (s *Memory) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetQueryError injects a query failure; nil restores normal operation.
func (s *Memory) SetQueryError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

// PointCount returns the number of stored points in a measurement.
func (s *Memory) PointCount(measurement string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.points {
		if p.measurement == measurement {
			n++
		}
	}
	return n
}

// Summaries returns all stored summary points for a device, oldest-first.
func (s *Memory) Summaries(device string) []models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Summary
	for _, p := range s.points {
		if p.measurement != MeasurementSummary || p.tags["device"] != device {
			continue
		}
		out = append(out, models.Summary{
			Device:        device,
			Posture:       p.tags["posture"],
			Timestamp:     p.ts,
			RMSSD:         p.nums["rmssd"],
			SDNN:          p.nums["sdnn"],
			PNN50:         p.nums["pnn50"],
			HeartRate:     int(p.nums["heart_rate"]),
			SampleCount:   int(p.nums["sample_count"]),
			ArtifactCount: int(p.nums["artifact_count"]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func pointKey(measurement string, tags map[string]string, ts int64) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(measurement)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, tags[k])
	}
	fmt.Fprintf(&b, "|%d", ts)
	return b.String()
}

// merge writes fields onto the point identity, creating it when absent.
// Must be called with mu held.
func (s *Memory) merge(measurement string, tags map[string]string, ts int64, nums map[string]float64, strs map[string]string) {
	key := pointKey(measurement, tags, ts)
	p, ok := s.points[key]
	if !ok {
		tagCopy := make(map[string]string, len(tags))
		for k, v := range tags {
			tagCopy[k] = v
		}
		p = &memPoint{
			measurement: measurement,
			tags:        tagCopy,
			ts:          ts,
			nums:        make(map[string]float64),
			strs:        make(map[string]string),
		}
		s.points[key] = p
	}
	for k, v := range nums {
		p.nums[k] = v
	}
	for k, v := range strs {
		p.strs[k] = v
	}
}

// Ping implements Store.
func (s *Memory) Ping(_ context.Context) error { return nil }

// WriteBeats implements Store.
func (s *Memory) WriteBeats(_ context.Context, beats []models.Beat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	for _, b := range beats {
		nums := map[string]float64{"rr_interval": b.RRInterval}
		if b.HeartRate > 0 {
			nums["heart_rate"] = b.HeartRate
		}
		strs := map[string]string{}
		if b.Source != "" {
			strs["source"] = b.Source
		}
		if b.Path != "" {
			strs["path"] = b.Path
		}
		s.merge(MeasurementRaw, map[string]string{"device": b.Device}, b.Timestamp, nums, strs)
	}
	return nil
}

// WriteCanonical implements Store.
func (s *Memory) WriteCanonical(_ context.Context, device string, ts int64, rrClean, hrClean float64, artifactType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.merge(MeasurementRaw, map[string]string{"device": device}, ts,
		map[string]float64{"rr_clean": rrClean, "hr_clean": hrClean},
		map[string]string{"artifact_type": artifactType})
	return nil
}

// WriteRealtime implements Store.
func (s *Memory) WriteRealtime(_ context.Context, sample models.RealtimeSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.merge(MeasurementRealtime, map[string]string{"device": sample.Device}, sample.Timestamp,
		map[string]float64{
			"rmssd": sample.RMSSD,
			"sdnn":  sample.SDNN,
			"pnn50": sample.PNN50,
			"hr":    float64(sample.HR),
		}, nil)
	return nil
}

// WriteSummary implements Store.
func (s *Memory) WriteSummary(_ context.Context, sum models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	tags := map[string]string{"device": sum.Device}
	if sum.Posture != "" {
		tags["posture"] = sum.Posture
	}
	s.merge(MeasurementSummary, tags, sum.Timestamp,
		map[string]float64{
			"rmssd":          sum.RMSSD,
			"sdnn":           sum.SDNN,
			"pnn50":          sum.PNN50,
			"heart_rate":     float64(sum.HeartRate),
			"sample_count":   float64(sum.SampleCount),
			"artifact_count": float64(sum.ArtifactCount),
		}, nil)
	return nil
}

// WritePosture implements Store.
func (s *Memory) WritePosture(_ context.Context, ts int64, p models.PosturePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	tags := map[string]string{"from_posture": p.FromPosture, "to_posture": p.ToPosture}
	if p.Source != "" {
		tags["source"] = p.Source
	}
	s.merge(MeasurementPosture, tags, ts,
		map[string]float64{
			"from_duration_seconds": p.FromDurationSeconds,
			"confidence":            p.Confidence,
		}, nil)
	return nil
}

// WriteStatus implements Store.
func (s *Memory) WriteStatus(_ context.Context, ts int64, p models.StatusPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	tags := map[string]string{"category": p.Category, "event": p.Event}
	if p.Source != "" {
		tags["source"] = p.Source
	}
	if p.Device != "" {
		tags["device"] = p.Device
	}
	nums := map[string]float64{}
	for k, v := range p.Fields {
		nums[k] = v
	}
	if len(nums) == 0 {
		nums["value"] = 1
	}
	s.merge(MeasurementStatus, tags, ts, nums, nil)
	return nil
}

// beatFromPoint maps a stored raw point back onto a Beat.
func beatFromPoint(p *memPoint) models.Beat {
	return models.Beat{
		Device:       p.tags["device"],
		Timestamp:    p.ts,
		RRInterval:   p.nums["rr_interval"],
		HeartRate:    p.nums["heart_rate"],
		Source:       p.strs["source"],
		Path:         p.strs["path"],
		RRClean:      p.nums["rr_clean"],
		HRClean:      p.nums["hr_clean"],
		ArtifactType: p.strs["artifact_type"],
	}
}

// selectBeats collects raw beats of a device matching keep, oldest-first.
func (s *Memory) selectBeats(device string, keep func(*memPoint) bool) ([]models.Beat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []models.Beat
	for _, p := range s.points {
		if p.measurement != MeasurementRaw || p.tags["device"] != device {
			continue
		}
		if keep(p) {
			out = append(out, beatFromPoint(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// QueryRange implements Store.
func (s *Memory) QueryRange(_ context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	return s.selectBeats(device, func(p *memPoint) bool {
		return p.ts >= startMs && p.ts <= endMs
	})
}

// QueryBefore implements Store.
func (s *Memory) QueryBefore(_ context.Context, device string, beforeMs int64, limit int) ([]models.Beat, error) {
	beats, err := s.selectBeats(device, func(p *memPoint) bool {
		return p.ts < beforeMs && p.nums["rr_interval"] > 0
	})
	if err != nil {
		return nil, err
	}
	if len(beats) > limit {
		beats = beats[len(beats)-limit:]
	}
	return beats, nil
}

// QueryAfter implements Store.
func (s *Memory) QueryAfter(_ context.Context, device string, afterMs int64, limit int) ([]models.Beat, error) {
	beats, err := s.selectBeats(device, func(p *memPoint) bool {
		return p.ts > afterMs && p.nums["rr_interval"] > 0
	})
	if err != nil {
		return nil, err
	}
	if len(beats) > limit {
		beats = beats[:limit]
	}
	return beats, nil
}

// QueryClean implements Store.
func (s *Memory) QueryClean(_ context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	return s.selectBeats(device, func(p *memPoint) bool {
		return p.ts >= startMs && p.ts < endMs && p.nums["rr_clean"] > 0
	})
}

// LastCleanTimestamp implements Store.
func (s *Memory) LastCleanTimestamp(_ context.Context, device string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryErr != nil {
		return 0, false, s.queryErr
	}
	var best int64
	found := false
	for _, p := range s.points {
		if p.measurement != MeasurementRaw || p.tags["device"] != device {
			continue
		}
		if p.nums["rr_clean"] > 0 && (!found || p.ts > best) {
			best = p.ts
			found = true
		}
	}
	return best, found, nil
}
