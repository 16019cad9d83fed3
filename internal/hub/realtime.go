// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hub

import (
	"context"
	"math"

	"github.com/tomtom215/polarhub/internal/hrv"
	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// IngestRealtime processes one relay beat payload: persists each RR as a
// raw beat, slides the classification window, and writes the per-beat HRV
// sample for the dashboard. Returns the number of beats received.
//
// Store write failures are logged and swallowed; the mobile client
// re-uploads through the batch path later, and the caller must not see a
// 5xx for them.
func (h *Hub) IngestRealtime(ctx context.Context, p models.BeatPayload) int {
	rrs := *p.RRIntervals

	st, created := h.ensureState(p.Device)
	if created {
		h.register(ctx, p.Device)
	}

	st.pipeMu.Lock()
	h.ingestRealtimeLocked(ctx, st, p, rrs)
	st.pipeMu.Unlock()

	h.publishSnapshot()
	return len(rrs)
}

func (h *Hub) ingestRealtimeLocked(ctx context.Context, st *deviceState, p models.BeatPayload, rrs []float64) {
	baseTs := p.Timestamp
	if baseTs == 0 {
		baseTs = h.nowFn()
	}

	// Lay the RR series head-to-tail from the payload timestamp: beat i
	// lands at baseTs plus the sum of the preceding intervals.
	beats := make([]models.Beat, 0, len(rrs))
	var offset float64
	for _, rr := range rrs {
		beats = append(beats, models.Beat{
			Device:     p.Device,
			Timestamp:  baseTs + int64(math.Round(offset)),
			RRInterval: rr,
			HeartRate:  p.HeartRate,
			Source:     p.Source,
			Path:       models.PathRealtime,
		})
		offset += rr
	}

	st.dataMu.Lock()
	if p.Posture != "" {
		st.lastPosture = p.Posture
	}
	for _, b := range beats {
		st.rrWindow = append(st.rrWindow, b.RRInterval)
		if len(st.rrWindow) > h.cfg.WindowSize {
			st.rrWindow = st.rrWindow[len(st.rrWindow)-h.cfg.WindowSize:]
		}
		st.totalBeats++
		st.lastBeatMs = b.Timestamp
	}
	window := make([]float64, len(st.rrWindow))
	copy(window, st.rrWindow)
	st.dataMu.Unlock()

	if len(beats) > 0 {
		if err := h.store.WriteBeats(ctx, beats); err != nil {
			metrics.StoreWriteErrors.WithLabelValues(store.MeasurementRaw).Inc()
			logging.Warn().Err(err).Str("device", p.Device).Int("beats", len(beats)).
				Msg("Raw beat write failed; batch re-upload will reconcile")
		} else {
			metrics.BeatsIngested.WithLabelValues(models.PathRealtime).Add(float64(len(beats)))
		}
	}

	if len(window) < 4 || len(beats) == 0 {
		return
	}

	analysis := hrv.AnalyzeRR(window)
	m, ok := hrv.Compute(analysis.CleanSeries)
	if !ok {
		// Degenerate window; null HRV for this tick only.
		logging.Debug().Str("device", p.Device).Msg("Realtime window not computable")
		return
	}

	sample := models.RealtimeSample{
		Device:    p.Device,
		Timestamp: beats[len(beats)-1].Timestamp,
		RMSSD:     m.RMSSD,
		SDNN:      m.SDNN,
		PNN50:     m.PNN50,
		HR:        hrv.HeartRate(m.MeanRR),
	}
	if err := h.store.WriteRealtime(ctx, sample); err != nil {
		metrics.StoreWriteErrors.WithLabelValues(store.MeasurementRealtime).Inc()
		logging.Warn().Err(err).Str("device", p.Device).Msg("Realtime HRV write failed")
	}

	st.dataMu.Lock()
	st.rmssdBuffer = append(st.rmssdBuffer, m.RMSSD)
	if len(st.rmssdBuffer) > h.cfg.RMSSDBuffer {
		st.rmssdBuffer = st.rmssdBuffer[len(st.rmssdBuffer)-h.cfg.RMSSDBuffer:]
	}
	st.lastHR = sample.HR
	st.lastRMSSD = m.RMSSD
	st.dataMu.Unlock()
}
