// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hub

import (
	"context"

	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// persistedStatusEvents is the allow-list of category.event keys written
// to the store. Everything else is log-only.
var persistedStatusEvents = map[string]struct{}{
	"ble.connected":             {},
	"ble.disconnected":          {},
	"ble.pmd_locked":            {},
	"session.recording":         {},
	"session.download_complete": {},
	"session.error":             {},
	"stream.hr_interrupted":     {},
	"stream.hr_recovered":       {},
	"upload.server_online":      {},
	"upload.server_offline":     {},
}

const disconnectedEvent = "ble.disconnected"

// HandleStatus records a relay status event. Allow-listed events persist
// to the store; ble.disconnected additionally clears the device's
// in-memory state. Persist failures are best-effort.
func (h *Hub) HandleStatus(ctx context.Context, p models.StatusPayload) {
	key := p.Category + "." + p.Event

	if _, persist := persistedStatusEvents[key]; persist {
		if err := h.store.WriteStatus(ctx, h.nowFn(), p); err != nil {
			metrics.StoreWriteErrors.WithLabelValues(store.MeasurementStatus).Inc()
			logging.Warn().Err(err).Str("event", key).Msg("Status event write failed")
		}
	}

	logging.Info().
		Str("event", key).
		Str("source", p.Source).
		Str("device", p.Device).
		Str("description", p.Description).
		Msg("Relay status event")

	if key == disconnectedEvent && p.Device != "" {
		h.ResetDevice(p.Device)
	}

	h.publishSnapshot()
}

// HandlePosture records a posture transition and remembers the new label
// for the device so summaries can carry it as a tag.
func (h *Hub) HandlePosture(ctx context.Context, p models.PosturePayload) {
	if err := h.store.WritePosture(ctx, h.nowFn(), p); err != nil {
		metrics.StoreWriteErrors.WithLabelValues(store.MeasurementPosture).Inc()
		logging.Warn().Err(err).Msg("Posture event write failed")
	}

	if p.Device != "" {
		if st := h.state(p.Device); st != nil {
			st.dataMu.Lock()
			st.lastPosture = p.ToPosture
			st.dataMu.Unlock()
		}
	}

	h.publishSnapshot()
}
