// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// stubProcessor records post-processor interactions.
type stubProcessor struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
	triggered    map[string]int64
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{triggered: make(map[string]int64)}
}

func (s *stubProcessor) Register(_ context.Context, device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, device)
}

func (s *stubProcessor) Unregister(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregistered = append(s.unregistered, device)
}

func (s *stubProcessor) TriggerReprocess(device string, fromMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.triggered[device]; !ok || fromMs < current {
		s.triggered[device] = fromMs
	}
}

func newTestHub(t *testing.T) (*Hub, *store.Memory, *stubProcessor) {
	t.Helper()
	mem := store.NewMemory()
	h := New(mem, nil, DefaultConfig())
	proc := newStubProcessor()
	h.SetProcessor(proc)
	return h, mem, proc
}

func rrSeries(n int, rr float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rr
	}
	return out
}

func beatPayload(device string, ts int64, rrs []float64) models.BeatPayload {
	return models.BeatPayload{Device: device, Timestamp: ts, RRIntervals: &rrs}
}

const baseTs = int64(1_700_000_000_000)

func TestIngestRealtime_CumulativeTimestamps(t *testing.T) {
	h, mem, proc := newTestHub(t)
	ctx := context.Background()

	received := h.IngestRealtime(ctx, beatPayload("dev1", baseTs, []float64{1000, 990, 1010, 1000, 995}))
	assert.Equal(t, 5, received)

	beats, err := mem.QueryRange(ctx, "dev1", baseTs, baseTs+10_000)
	require.NoError(t, err)
	require.Len(t, beats, 5)

	// Timestamps form the strictly increasing series t, t+rr0, t+rr0+rr1...
	wantTs := []int64{baseTs, baseTs + 1000, baseTs + 1990, baseTs + 3000, baseTs + 4000}
	for i, b := range beats {
		assert.Equal(t, wantTs[i], b.Timestamp)
		assert.Equal(t, models.PathRealtime, b.Path)
	}

	// Five beats fill the window past the minimum, so one realtime HRV
	// sample lands at the last beat's timestamp.
	assert.Equal(t, 1, mem.PointCount(store.MeasurementRealtime))

	proc.mu.Lock()
	assert.Equal(t, []string{"dev1"}, proc.registered)
	proc.mu.Unlock()
}

func TestIngestRealtime_WriteFailureSwallowed(t *testing.T) {
	h, mem, _ := newTestHub(t)
	mem.SetWriteError(errors.New("influx down"))

	received := h.IngestRealtime(context.Background(), beatPayload("dev1", baseTs, rrSeries(5, 1000)))

	// The caller still sees success; the batch path reconciles later.
	assert.Equal(t, 5, received)
	assert.Equal(t, 0, mem.PointCount(store.MeasurementRaw))
}

func TestIngestRealtime_WindowBounded(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	ts := baseTs
	for i := 0; i < 3; i++ {
		h.IngestRealtime(ctx, beatPayload("dev1", ts, rrSeries(30, 1000)))
		ts += 30_000
	}

	st := h.state("dev1")
	require.NotNil(t, st)
	st.dataMu.RLock()
	defer st.dataMu.RUnlock()
	assert.Len(t, st.rrWindow, 60)
	assert.Equal(t, int64(90), st.totalBeats)
}

func TestIngestBatch_PureDuplicates(t *testing.T) {
	// 60 beats arrive in real time, then the mobile client uploads the
	// identical session.
	h, mem, _ := newTestHub(t)
	ctx := context.Background()

	h.IngestRealtime(ctx, beatPayload("dev1", baseTs, rrSeries(60, 1000)))
	require.Equal(t, 60, mem.PointCount(store.MeasurementRaw))

	beats := []models.BatchBeat{{Timestamp: ptr(baseTs), RRIntervals: rrSeries(60, 1000)}}
	result, err := h.IngestBatch(ctx, models.BatchPayload{Device: "dev1", Beats: &beats})
	require.NoError(t, err)

	assert.Equal(t, models.BatchResult{Received: 60, New: 0, Duplicates: 60}, result)
	assert.Equal(t, 60, mem.PointCount(store.MeasurementRaw))
}

func TestIngestBatch_SingleGapFill(t *testing.T) {
	// Real-time ingest drops beat index 30; the upload fills exactly it.
	h, mem, proc := newTestHub(t)
	ctx := context.Background()

	h.IngestRealtime(ctx, beatPayload("dev1", baseTs, rrSeries(30, 1000)))
	h.IngestRealtime(ctx, beatPayload("dev1", baseTs+31_000, rrSeries(29, 1000)))
	require.Equal(t, 59, mem.PointCount(store.MeasurementRaw))

	beats := []models.BatchBeat{{Timestamp: ptr(baseTs), RRIntervals: rrSeries(60, 1000)}}
	result, err := h.IngestBatch(ctx, models.BatchPayload{Device: "dev1", Beats: &beats})
	require.NoError(t, err)

	assert.Equal(t, models.BatchResult{Received: 60, New: 1, Duplicates: 59}, result)
	assert.Equal(t, 60, mem.PointCount(store.MeasurementRaw))

	filled, err := mem.QueryRange(ctx, "dev1", baseTs+30_000, baseTs+30_000)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, models.PathBatch, filled[0].Path)

	// The rewind notification points at the start of the upload.
	proc.mu.Lock()
	assert.Equal(t, baseTs, proc.triggered["dev1"])
	proc.mu.Unlock()
}

func TestIngestBatch_AllNewOnEmptyStore(t *testing.T) {
	h, mem, _ := newTestHub(t)
	ctx := context.Background()

	beats := []models.BatchBeat{{Timestamp: ptr(baseTs), RRIntervals: rrSeries(10, 1000)}}
	result, err := h.IngestBatch(ctx, models.BatchPayload{Device: "dev1", Beats: &beats})
	require.NoError(t, err)

	assert.Equal(t, models.BatchResult{Received: 10, New: 10, Duplicates: 0}, result)
	assert.Equal(t, 10, mem.PointCount(store.MeasurementRaw))
}

func TestIngestBatch_Reupload(t *testing.T) {
	// Idempotence: uploading the same batch twice leaves the stored point
	// count unchanged and reports zero new.
	h, mem, _ := newTestHub(t)
	ctx := context.Background()

	beats := []models.BatchBeat{{Timestamp: ptr(baseTs), RRIntervals: rrSeries(20, 1000)}}
	payload := models.BatchPayload{Device: "dev1", Beats: &beats}

	first, err := h.IngestBatch(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 20, first.New)

	second, err := h.IngestBatch(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.BatchResult{Received: 20, New: 0, Duplicates: 20}, second)
	assert.Equal(t, 20, mem.PointCount(store.MeasurementRaw))
}

func TestIngestBatch_StoreFailureSurfaces(t *testing.T) {
	h, mem, _ := newTestHub(t)
	mem.SetWriteError(errors.New("influx down"))

	beats := []models.BatchBeat{{Timestamp: ptr(baseTs), RRIntervals: rrSeries(5, 1000)}}
	_, err := h.IngestBatch(context.Background(), models.BatchPayload{Device: "dev1", Beats: &beats})
	assert.Error(t, err)
}

func TestHandleStatus_AllowlistAndReset(t *testing.T) {
	h, mem, proc := newTestHub(t)
	ctx := context.Background()

	h.IngestRealtime(ctx, beatPayload("dev1", baseTs, rrSeries(5, 1000)))
	require.Equal(t, 1, h.DeviceCount())

	h.HandleStatus(ctx, models.StatusPayload{Category: "ble", Event: "connected", Device: "dev1"})
	assert.Equal(t, 1, mem.PointCount(store.MeasurementStatus))

	// Not on the allow-list: log-only.
	h.HandleStatus(ctx, models.StatusPayload{Category: "debug", Event: "noise"})
	assert.Equal(t, 1, mem.PointCount(store.MeasurementStatus))

	h.HandleStatus(ctx, models.StatusPayload{Category: "ble", Event: "disconnected", Device: "dev1"})
	assert.Equal(t, 2, mem.PointCount(store.MeasurementStatus))
	assert.Equal(t, 0, h.DeviceCount())

	proc.mu.Lock()
	assert.Equal(t, []string{"dev1"}, proc.unregistered)
	proc.mu.Unlock()
}

func TestHandlePosture(t *testing.T) {
	h, mem, _ := newTestHub(t)
	ctx := context.Background()

	h.IngestRealtime(ctx, beatPayload("dev1", baseTs, rrSeries(5, 1000)))
	h.HandlePosture(ctx, models.PosturePayload{
		Device:      "dev1",
		FromPosture: "sitting",
		ToPosture:   "standing",
		Confidence:  0.92,
	})

	assert.Equal(t, 1, mem.PointCount(store.MeasurementPosture))
	assert.Equal(t, "standing", h.Posture("dev1"))
}

func TestSnapshot(t *testing.T) {
	h, _, _ := newTestHub(t)
	ctx := context.Background()

	h.IngestRealtime(ctx, beatPayload("dev2", baseTs, rrSeries(10, 1000)))
	h.IngestRealtime(ctx, beatPayload("dev1", baseTs, rrSeries(3, 1000)))

	snap := h.Snapshot()
	require.Len(t, snap.Devices, 2)
	// Devices come out sorted by name.
	assert.Equal(t, "dev1", snap.Devices[0].Device)
	assert.Equal(t, int64(3), snap.Devices[0].TotalBeats)
	assert.Equal(t, "dev2", snap.Devices[1].Device)
	assert.Equal(t, int64(10), snap.Devices[1].TotalBeats)
	assert.NotEmpty(t, snap.Devices[1].RMSSDSeries)
}

func ptr[T any](v T) *T { return &v }
