// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package postprocess implements the deferred beat classifier: a periodic
// task that re-runs the artifact classifier with full left/right context
// over beats older than the buffer threshold, merge-writes the canonical
// rr_clean/artifact_type fields, inserts synthetic beats for split missed
// artifacts, and recomputes the five-minute HRV summaries touched by the
// pass.
//
// Each device carries a high-water mark (lastProcessedMs): every beat
// older than it has been classified. The mark only moves backwards through
// TriggerReprocess, the batch deduplicator's rewind notification; the next
// pass then re-classifies the rewound range (idempotent merge-writes).
package postprocess

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/polarhub/internal/hrv"
	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
	"github.com/tomtom215/polarhub/internal/store"
)

// StateProvider is the hub surface the post-processor needs: per-device
// serialization and the posture label for summary tags.
type StateProvider interface {
	// LockDevice takes the device's pipeline lock and returns unlock.
	LockDevice(device string) func()

	// Posture returns the device's last seen posture label, or empty.
	Posture(device string) string
}

// Config parameterizes the post-processor.
type Config struct {
	// Interval is the tick cadence.
	Interval time.Duration

	// BufferMs is how far behind wall clock classification runs. It must
	// cover the right-context window: 91 beats at resting heart rate is
	// about 91 seconds, so 120s guarantees stable decisions.
	BufferMs int64

	// SummaryIntervalMs is the summary window width.
	SummaryIntervalMs int64

	// ContextBeats is the left/right context length, matching the
	// classifier's threshold window.
	ContextBeats int

	// MinSummaryBeats is the fewest clean beats a window needs before a
	// summary is written.
	MinSummaryBeats int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		Interval:          time.Minute,
		BufferMs:          120_000,
		SummaryIntervalMs: 300_000,
		ContextBeats:      91,
		MinSummaryBeats:   10,
	}
}

// cursor is one device's post-processing state.
type cursor struct {
	mu              sync.Mutex
	lastProcessedMs int64
}

// Manager is the timer-driven post-processor.
type Manager struct {
	store  store.Store
	states StateProvider
	cfg    Config
	nowFn  func() int64

	mu       sync.RWMutex
	cursors  map[string]*cursor
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates the post-processor.
func NewManager(st store.Store, states StateProvider, cfg Config) *Manager {
	if cfg.Interval == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		store:    st,
		states:   states,
		cfg:      cfg,
		nowFn:    func() int64 { return time.Now().UnixMilli() },
		cursors:  make(map[string]*cursor),
		stopChan: make(chan struct{}),
	}
}

// SetNowFunc overrides the clock, used by tests.
func (m *Manager) SetNowFunc(now func() int64) {
	m.nowFn = now
}

// Register makes a device known. On first sight the high-water mark loads
// from the store (newest classified timestamp), or starts at now when the
// device has no classified beats yet. Safe to call repeatedly.
func (m *Manager) Register(ctx context.Context, device string) {
	m.mu.RLock()
	_, known := m.cursors[device]
	m.mu.RUnlock()
	if known {
		return
	}

	start := m.nowFn()
	if ts, ok, err := m.store.LastCleanTimestamp(ctx, device); err != nil {
		logging.Warn().Err(err).Str("device", device).
			Msg("Could not load processing mark; starting at now")
	} else if ok {
		start = ts
	}

	m.mu.Lock()
	if _, known := m.cursors[device]; !known {
		m.cursors[device] = &cursor{lastProcessedMs: start}
		logging.Info().Str("device", device).Int64("last_processed_ms", start).
			Msg("Device registered with post-processor")
	}
	m.mu.Unlock()
}

// Unregister drops the device's cursor. The next beat re-registers and
// reloads the mark from the store.
func (m *Manager) Unregister(device string) {
	m.mu.Lock()
	delete(m.cursors, device)
	m.mu.Unlock()
}

// TriggerReprocess moves the device's mark back to fromMs if earlier. The
// batch deduplicator calls this after writing gap fills.
func (m *Manager) TriggerReprocess(device string, fromMs int64) {
	m.mu.Lock()
	c, ok := m.cursors[device]
	if !ok {
		c = &cursor{lastProcessedMs: fromMs}
		m.cursors[device] = c
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	c.mu.Lock()
	if fromMs < c.lastProcessedMs {
		logging.Info().Str("device", device).
			Int64("from_ms", fromMs).Int64("previous_ms", c.lastProcessedMs).
			Msg("Rewinding processing mark for reprocess")
		c.lastProcessedMs = fromMs
	}
	c.mu.Unlock()
}

// LastProcessedMs returns the device's current mark, or ok=false when the
// device is not registered.
func (m *Manager) LastProcessedMs(device string) (int64, bool) {
	m.mu.RLock()
	c, ok := m.cursors[device]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProcessedMs, true
}

// Start begins the periodic processing loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("post-processor is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	logging.Info().Dur("interval", m.cfg.Interval).Int64("buffer_ms", m.cfg.BufferMs).
		Msg("Starting post-processor")

	m.wg.Add(1)
	go m.runLoop(ctx)
	return nil
}

// Stop gracefully stops the processing loop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("post-processor is not running")
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Post-processor stopped")
	return nil
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick processes every registered device once. One device's failure never
// prevents the others from being processed.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.RLock()
	devices := make([]string, 0, len(m.cursors))
	for device := range m.cursors {
		devices = append(devices, device)
	}
	m.mu.RUnlock()

	for _, device := range devices {
		start := time.Now()
		if err := m.processDeviceSafe(ctx, device); err != nil {
			logging.Error().Err(err).Str("device", device).Msg("Post-processing failed")
		}
		metrics.PostprocessDuration.Observe(time.Since(start).Seconds())
	}
}

// processDeviceSafe converts panics into errors so a malformed series
// cannot kill the tick loop.
func (m *Manager) processDeviceSafe(ctx context.Context, device string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-processing panicked: %v", r)
		}
	}()
	return m.processDevice(ctx, device)
}

// processDevice runs one classification pass for one device.
func (m *Manager) processDevice(ctx context.Context, device string) error {
	m.mu.RLock()
	c, ok := m.cursors[device]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	unlock := m.states.LockDevice(device)
	defer unlock()

	c.mu.Lock()
	lastProcessed := c.lastProcessedMs
	c.mu.Unlock()

	now := m.nowFn()
	cutoff := now - m.cfg.BufferMs
	if lastProcessed >= cutoff {
		return nil
	}

	var left, target, right []models.Beat
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		left, err = m.store.QueryBefore(gctx, device, lastProcessed, m.cfg.ContextBeats)
		return err
	})
	g.Go(func() (err error) {
		target, err = m.store.QueryRange(gctx, device, lastProcessed, cutoff)
		return err
	})
	g.Go(func() (err error) {
		right, err = m.store.QueryAfter(gctx, device, cutoff, m.cfg.ContextBeats)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("querying beats: %w", err)
	}

	// Synthetic inserted beats carry no rr_interval; they are outputs of a
	// previous pass, not classifier input.
	targets := target[:0:0]
	for _, b := range target {
		if b.RRInterval > 0 {
			targets = append(targets, b)
		}
	}

	totalRR := len(left) + len(targets) + len(right)
	if totalRR < hrvMinSeries {
		m.advance(c, device, cutoff)
		return nil
	}

	rr := make([]float64, 0, totalRR)
	for _, b := range left {
		rr = append(rr, b.RRInterval)
	}
	for _, b := range targets {
		rr = append(rr, b.RRInterval)
	}
	for _, b := range right {
		rr = append(rr, b.RRInterval)
	}

	analysis := hrv.AnalyzeRR(rr)
	results := analysis.Results[len(left) : len(left)+len(targets)]

	for i, beat := range targets {
		m.writeCanonical(ctx, device, beat, results[i])
	}

	m.advance(c, device, cutoff)

	if len(targets) > 0 {
		m.recomputeSummaries(ctx, device, targets[0].Timestamp, targets[len(targets)-1].Timestamp, now)
	}
	return nil
}

// hrvMinSeries matches the classifier's minimum input length.
const hrvMinSeries = 4

// writeCanonical merge-writes one beat's canonical fields, inserting the
// synthetic second half for split missed beats. Failures are logged and
// swallowed; the mark still advances and the next rewind reconciles.
func (m *Manager) writeCanonical(ctx context.Context, device string, beat models.Beat, res hrv.Result) {
	write := func(ts int64, rrClean, hrClean float64, artifact hrv.ArtifactType) {
		if err := m.store.WriteCanonical(ctx, device, ts, rrClean, hrClean, string(artifact)); err != nil {
			metrics.StoreWriteErrors.WithLabelValues(store.MeasurementRaw).Inc()
			logging.Warn().Err(err).Str("device", device).Int64("ts", ts).
				Msg("Canonical write failed")
		}
	}

	switch res.Type {
	case hrv.ArtifactMissed:
		hrClean := hrv.CleanHeartRate(res.RRClean)
		write(beat.Timestamp, res.RRClean, hrClean, hrv.ArtifactMissed)
		// The second half of the split beat gets its own synthetic point,
		// offset by the corrected interval.
		insertTs := beat.Timestamp + int64(math.Round(res.RRClean))
		write(insertTs, res.RRClean, hrClean, hrv.ArtifactMissedInserted)
	case hrv.ArtifactExtraAbsorbed:
		// Sentinel zero marks "no real beat here".
		write(beat.Timestamp, 0, 0, hrv.ArtifactExtraAbsorbed)
	default:
		write(beat.Timestamp, res.RRClean, hrv.CleanHeartRate(res.RRClean), res.Type)
	}

	if res.Type != hrv.ArtifactNone {
		metrics.Artifacts.WithLabelValues(string(res.Type)).Inc()
	}
}

// advance moves the mark forward to cutoff unless a rewind landed earlier
// in the meantime.
func (m *Manager) advance(c *cursor, device string, cutoff int64) {
	c.mu.Lock()
	if cutoff > c.lastProcessedMs {
		c.lastProcessedMs = cutoff
	}
	c.mu.Unlock()
	logging.Debug().Str("device", device).Int64("cutoff", cutoff).Msg("Processing mark advanced")
}
