// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package api

import (
	"net/http"

	"github.com/tomtom215/polarhub/internal/models"
)

type beatsResponse struct {
	OK       bool `json:"ok"`
	Received int  `json:"received"`
}

type batchResponse struct {
	OK         bool `json:"ok"`
	Received   int  `json:"received"`
	New        int  `json:"new"`
	Duplicates int  `json:"duplicates"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type healthResponse struct {
	OK      bool `json:"ok"`
	Devices int  `json:"devices"`
}

// PostBeats accepts one real-time beat payload from the relay.
//
// Raw write failures are swallowed here: the relay cannot retry (it has
// already moved on), and the mobile client re-uploads through the batch
// path later.
func (h *Handler) PostBeats(w http.ResponseWriter, r *http.Request) {
	var payload models.BeatPayload
	if err := h.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !validateBody(w, &payload) {
		return
	}

	received := h.hub.IngestRealtime(r.Context(), payload)
	respondJSON(w, http.StatusOK, beatsResponse{OK: true, Received: received})
}

// PostBeatsBatch accepts a retroactive upload and runs the deduplicator.
// Store failures surface as 500; the client retries the whole batch.
func (h *Handler) PostBeatsBatch(w http.ResponseWriter, r *http.Request) {
	var payload models.BatchPayload
	if err := h.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !validateBody(w, &payload) {
		return
	}
	for _, beat := range *payload.Beats {
		if beat.Timestamp == nil {
			respondError(w, http.StatusBadRequest, "every beat requires a numeric timestamp", nil)
			return
		}
	}

	result, err := h.hub.IngestBatch(r.Context(), payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InfluxDB write failed", err)
		return
	}
	respondJSON(w, http.StatusOK, batchResponse{
		OK:         true,
		Received:   result.Received,
		New:        result.New,
		Duplicates: result.Duplicates,
	})
}

// PostPosture accepts a posture transition.
func (h *Handler) PostPosture(w http.ResponseWriter, r *http.Request) {
	var payload models.PosturePayload
	if err := h.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !validateBody(w, &payload) {
		return
	}

	h.hub.HandlePosture(r.Context(), payload)
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// PostStatus accepts a relay status event.
func (h *Handler) PostStatus(w http.ResponseWriter, r *http.Request) {
	var payload models.StatusPayload
	if err := h.decodeBody(w, r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !validateBody(w, &payload) {
		return
	}

	h.hub.HandleStatus(r.Context(), payload)
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// Health reports hub liveness and the number of tracked devices.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{OK: true, Devices: h.hub.DeviceCount()})
}

// HealthLive is the liveness probe: 200 whenever the process serves.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}
