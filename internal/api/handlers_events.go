// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
)

// Events streams status snapshots as server-sent events. Every connection
// gets the current snapshot immediately, then each broadcast as its own
// event until the client disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	messages, err := h.bus.Subscribe(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "subscribe failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.SSEClients.Inc()
	defer metrics.SSEClients.Dec()

	// Initial snapshot so the dashboard renders before the first beat.
	initial, err := json.Marshal(h.hub.Snapshot())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal initial snapshot")
		return
	}
	if !writeEvent(w, flusher, initial) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-messages:
			if !open {
				return
			}
			ok := writeEvent(w, flusher, msg.Payload)
			msg.Ack()
			if !ok {
				return
			}
		}
	}
}

// writeEvent writes one SSE data frame; false means the client went away.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, payload []byte) bool {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
