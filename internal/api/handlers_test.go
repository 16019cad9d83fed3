// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/polarhub/internal/events"
	"github.com/tomtom215/polarhub/internal/hub"
	"github.com/tomtom215/polarhub/internal/store"
)

type testServer struct {
	server *httptest.Server
	mem    *store.Memory
	hub    *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	bus := events.New()
	t.Cleanup(func() { _ = bus.Close() })

	beatHub := hub.New(mem, bus, hub.DefaultConfig())
	handler := NewHandler(beatHub, bus, 5<<20)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &testServer{server: server, mem: mem, hub: beatHub}
}

func (ts *testServer) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestPostBeats(t *testing.T) {
	t.Run("accepts and reports received", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/beats", map[string]any{
			"device":      "dev1",
			"timestamp":   1_700_000_000_000,
			"heartRate":   62,
			"rrIntervals": []float64{1000, 990, 1010},
			"source":      "relay1",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.EqualValues(t, 3, body["received"])
		assert.Equal(t, 3, ts.mem.PointCount(store.MeasurementRaw))
	})

	t.Run("missing device rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/beats", map[string]any{
			"rrIntervals": []float64{1000},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["ok"])
		assert.NotEmpty(t, body["error"])
	})

	t.Run("missing rrIntervals rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/beats", map[string]any{"device": "dev1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("non-array rrIntervals rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/beats", map[string]any{
			"device":      "dev1",
			"rrIntervals": "not-an-array",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty rrIntervals accepted with zero received", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/beats", map[string]any{
			"device":      "dev1",
			"rrIntervals": []float64{},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 0, body["received"])
	})

	t.Run("store failure still accepted", func(t *testing.T) {
		ts := newTestServer(t)
		ts.mem.SetWriteError(errors.New("influx down"))
		resp, body := ts.post(t, "/beats", map[string]any{
			"device":      "dev1",
			"timestamp":   1_700_000_000_000,
			"rrIntervals": []float64{1000, 1000},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
	})
}

func TestPostBeatsBatch(t *testing.T) {
	t.Run("deduplicates and reports counts", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/beats/batch", map[string]any{
			"device": "dev1",
			"beats": []map[string]any{
				{"timestamp": 1_700_000_000_000, "rrIntervals": []float64{1000, 1000}},
				{"timestamp": 1_700_000_002_000, "rrIntervals": []float64{1000}},
			},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.EqualValues(t, 3, body["received"])
		assert.EqualValues(t, 3, body["new"])
		assert.EqualValues(t, 0, body["duplicates"])
	})

	t.Run("missing beats rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/beats/batch", map[string]any{"device": "dev1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("beat without timestamp rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/beats/batch", map[string]any{
			"device": "dev1",
			"beats":  []map[string]any{{"rrIntervals": []float64{1000}}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 0, ts.mem.PointCount(store.MeasurementRaw))
	})

	t.Run("store failure surfaces 500", func(t *testing.T) {
		ts := newTestServer(t)
		ts.mem.SetQueryError(errors.New("influx down"))
		resp, body := ts.post(t, "/beats/batch", map[string]any{
			"device": "dev1",
			"beats":  []map[string]any{{"timestamp": 1_700_000_000_000, "rrIntervals": []float64{1000}}},
		})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "InfluxDB write failed", body["error"])
	})
}

func TestPostPosture(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/posture", map[string]any{
			"fromPosture": "sitting",
			"toPosture":   "standing",
			"confidence":  0.9,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, 1, ts.mem.PointCount(store.MeasurementPosture))
	})

	t.Run("missing postures rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/posture", map[string]any{"fromPosture": "sitting"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPostStatus(t *testing.T) {
	t.Run("allow-listed event persisted", func(t *testing.T) {
		ts := newTestServer(t)
		resp, body := ts.post(t, "/status", map[string]any{
			"category": "ble",
			"event":    "connected",
			"device":   "dev1",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, 1, ts.mem.PointCount(store.MeasurementStatus))
	})

	t.Run("missing category rejected", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.post(t, "/status", map[string]any{"event": "connected"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.post(t, "/beats", map[string]any{
		"device":      "dev1",
		"timestamp":   1_700_000_000_000,
		"rrIntervals": []float64{1000},
	})

	resp, err := http.Get(ts.server.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 1, body["devices"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
