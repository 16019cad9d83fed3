// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package postprocess

import (
	"context"

	"github.com/tomtom215/polarhub/internal/hrv"
	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// recomputeSummaries rewrites the five-minute summaries for every window
// touched by [startMs, endMs]. Only windows whose end is already in the
// past get a summary; the ones still open wait for a later pass. Windows
// with fewer than MinSummaryBeats clean beats are skipped silently.
func (m *Manager) recomputeSummaries(ctx context.Context, device string, startMs, endMs, nowMs int64) {
	interval := m.cfg.SummaryIntervalMs
	firstWindow := (startMs / interval) * interval
	lastWindowEnd := ((endMs / interval) + 1) * interval

	for windowStart := firstWindow; windowStart < lastWindowEnd; windowStart += interval {
		windowEnd := windowStart + interval
		if windowEnd > nowMs {
			continue
		}

		clean, err := m.store.QueryClean(ctx, device, windowStart, windowEnd)
		if err != nil {
			logging.Warn().Err(err).Str("device", device).Int64("window_end", windowEnd).
				Msg("Summary query failed")
			continue
		}
		if len(clean) < m.cfg.MinSummaryBeats {
			continue
		}

		values := make([]float64, len(clean))
		artifacts := 0
		for i, b := range clean {
			values[i] = b.RRClean
			if b.ArtifactType != "" && b.ArtifactType != string(hrv.ArtifactNone) {
				artifacts++
			}
		}

		met, ok := hrv.Compute(values)
		if !ok {
			continue
		}

		summary := models.Summary{
			Device:        device,
			Posture:       m.states.Posture(device),
			Timestamp:     windowEnd,
			RMSSD:         met.RMSSD,
			SDNN:          met.SDNN,
			PNN50:         met.PNN50,
			HeartRate:     hrv.HeartRate(met.MeanRR),
			SampleCount:   len(clean),
			ArtifactCount: artifacts,
		}
		if err := m.store.WriteSummary(ctx, summary); err != nil {
			metrics.StoreWriteErrors.WithLabelValues(store.MeasurementSummary).Inc()
			logging.Warn().Err(err).Str("device", device).Int64("window_end", windowEnd).
				Msg("Summary write failed")
			continue
		}
		metrics.SummariesWritten.Inc()

		logging.Debug().
			Str("device", device).
			Int64("window_end", windowEnd).
			Int("samples", summary.SampleCount).
			Int("artifacts", summary.ArtifactCount).
			Msg("Summary recomputed")
	}
}
