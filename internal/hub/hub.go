// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package hub owns per-device state and the two ingest paths: the
// real-time pipeline fed by the relay and the batch deduplicator fed by
// retroactive uploads.
//
// Concurrency contract: for any one device, real-time ingest, batch ingest
// and a post-processor pass never overlap. Each deviceState carries a
// pipeline mutex serializing those three; the post-processor acquires it
// through LockDevice. Lightweight reads (status snapshots, posture lookups)
// use a separate data mutex so they never wait behind a processing pass.
package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/polarhub/internal/events"
	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// Reprocessor is the post-processor surface the hub drives: device
// registration and the deduplicator's rewind notification.
type Reprocessor interface {
	// Register makes the device known, loading its high-water mark from
	// the store on first sight.
	Register(ctx context.Context, device string)

	// Unregister drops the device's cursor (ble.disconnected).
	Unregister(device string)

	// TriggerReprocess moves the device's high-water mark back to fromMs
	// if that is earlier than its current position.
	TriggerReprocess(device string, fromMs int64)
}

// Config bounds the per-device in-memory series.
type Config struct {
	// WindowSize is the real-time classification window (beats).
	WindowSize int

	// RMSSDBuffer is the dashboard RMSSD series length.
	RMSSDBuffer int
}

// DefaultConfig returns the production window sizes.
func DefaultConfig() Config {
	return Config{WindowSize: 60, RMSSDBuffer: 30}
}

// Hub is the per-device state registry and ingest front end.
type Hub struct {
	store     store.Store
	bus       *events.Bus
	processor Reprocessor
	cfg       Config
	startMs   int64
	nowFn     func() int64

	mu      sync.RWMutex
	devices map[string]*deviceState
}

// deviceState is the in-memory state of one device. It is created lazily
// on first beat, lives for the process lifetime, and is dropped on a
// ble.disconnected status event.
type deviceState struct {
	// pipeMu serializes real-time ingest, batch ingest and the
	// post-processor for this device.
	pipeMu sync.Mutex

	// dataMu guards the fields below.
	dataMu      sync.RWMutex
	rrWindow    []float64
	rmssdBuffer []float64
	totalBeats  int64
	lastPosture string
	lastBeatMs  int64
	lastHR      int
	lastRMSSD   float64
}

// New creates the hub. The post-processor is attached afterwards via
// SetProcessor because the two reference each other.
func New(st store.Store, bus *events.Bus, cfg Config) *Hub {
	if cfg.WindowSize == 0 {
		cfg = DefaultConfig()
	}
	now := func() int64 { return time.Now().UnixMilli() }
	return &Hub{
		store:   st,
		bus:     bus,
		cfg:     cfg,
		startMs: now(),
		nowFn:   now,
		devices: make(map[string]*deviceState),
	}
}

// SetProcessor attaches the post-processor. Must be called before serving.
func (h *Hub) SetProcessor(p Reprocessor) {
	h.processor = p
}

// SetNowFunc overrides the clock, used by tests.
func (h *Hub) SetNowFunc(now func() int64) {
	h.nowFn = now
}

// ensureState returns the device state, creating it when absent.
func (h *Hub) ensureState(device string) (*deviceState, bool) {
	h.mu.RLock()
	st, ok := h.devices[device]
	h.mu.RUnlock()
	if ok {
		return st, false
	}

	h.mu.Lock()
	st, ok = h.devices[device]
	if !ok {
		st = &deviceState{}
		h.devices[device] = st
		metrics.DevicesActive.Set(float64(len(h.devices)))
	}
	h.mu.Unlock()
	return st, !ok
}

// register runs first-sight registration with the post-processor.
func (h *Hub) register(ctx context.Context, device string) {
	if h.processor == nil {
		return
	}
	h.processor.Register(ctx, device)
}

// state returns the device state or nil.
func (h *Hub) state(device string) *deviceState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[device]
}

// LockDevice takes the device's pipeline lock, creating state as needed,
// and returns the unlock function. The post-processor wraps each per-device
// pass in this so it never overlaps ingest for the same device.
func (h *Hub) LockDevice(device string) func() {
	st, _ := h.ensureState(device)
	st.pipeMu.Lock()
	return st.pipeMu.Unlock
}

// Posture returns the device's last seen posture label, or empty.
func (h *Hub) Posture(device string) string {
	st := h.state(device)
	if st == nil {
		return ""
	}
	st.dataMu.RLock()
	defer st.dataMu.RUnlock()
	return st.lastPosture
}

// DeviceCount returns the number of devices with in-memory state.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// ResetDevice drops the device's in-memory state and post-processor
// cursor. The next beat recreates both; the cursor reloads from the store.
func (h *Hub) ResetDevice(device string) {
	h.mu.Lock()
	_, existed := h.devices[device]
	delete(h.devices, device)
	remaining := len(h.devices)
	h.mu.Unlock()

	if existed {
		metrics.DevicesActive.Set(float64(remaining))
		logging.Info().Str("device", device).Msg("Device state reset")
	}
	if h.processor != nil {
		h.processor.Unregister(device)
	}
}

// Snapshot builds a consistent status snapshot for the SSE fan-out.
func (h *Hub) Snapshot() models.StatusSnapshot {
	h.mu.RLock()
	names := make([]string, 0, len(h.devices))
	states := make(map[string]*deviceState, len(h.devices))
	for name, st := range h.devices {
		names = append(names, name)
		states[name] = st
	}
	h.mu.RUnlock()
	sort.Strings(names)

	snapshot := models.StatusSnapshot{
		Timestamp: h.nowFn(),
		StartedMs: h.startMs,
		Devices:   make([]models.DeviceStatus, 0, len(names)),
	}
	for _, name := range names {
		st := states[name]
		st.dataMu.RLock()
		series := make([]float64, len(st.rmssdBuffer))
		copy(series, st.rmssdBuffer)
		snapshot.Devices = append(snapshot.Devices, models.DeviceStatus{
			Device:      name,
			TotalBeats:  st.totalBeats,
			LastBeatMs:  st.lastBeatMs,
			HeartRate:   st.lastHR,
			RMSSD:       st.lastRMSSD,
			RMSSDSeries: series,
			Posture:     st.lastPosture,
		})
		st.dataMu.RUnlock()
	}
	return snapshot
}

// publishSnapshot broadcasts the current snapshot. One-way notification;
// failures never block ingest.
func (h *Hub) publishSnapshot() {
	if h.bus == nil {
		return
	}
	if err := h.bus.PublishSnapshot(h.Snapshot()); err != nil {
		logging.Warn().Err(err).Msg("Failed to publish status snapshot")
	}
}
