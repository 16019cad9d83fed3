// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package postprocess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/polarhub/internal/models"
)

// alignedWindowStart returns the first summary-window boundary strictly
// after baseTs.
func alignedWindowStart(intervalMs int64) int64 {
	return ((baseTs / intervalMs) + 1) * intervalMs
}

func TestSummaryRecomputation(t *testing.T) {
	interval := DefaultConfig().SummaryIntervalMs
	windowStart := alignedWindowStart(interval)
	now := windowStart + interval + 130_000

	m, mem, beatHub := newTestManager(t, now)
	ctx := context.Background()

	// Posture tag comes from the hub's last seen label.
	beatHub.LockDevice("dev1")()
	beatHub.HandlePosture(ctx, models.PosturePayload{
		Device: "dev1", FromPosture: "sitting", ToPosture: "standing",
	})

	// Thirty clean one-second beats inside one window, all in the past.
	seedBeats(t, mem, "dev1", windowStart, make60(30, 1000))

	m.Register(ctx, "dev1")
	m.TriggerReprocess("dev1", windowStart)
	m.Tick(ctx)

	summaries := mem.Summaries("dev1")
	require.Len(t, summaries, 1)
	s := summaries[0]

	// Summary lands at the window end, a multiple of the interval.
	assert.Equal(t, windowStart+interval, s.Timestamp)
	assert.Zero(t, s.Timestamp%interval)
	assert.Equal(t, 30, s.SampleCount)
	assert.Equal(t, 0, s.ArtifactCount)
	assert.Equal(t, 60, s.HeartRate)
	assert.Equal(t, "standing", s.Posture)
	assert.Zero(t, s.RMSSD)
}

func TestSummarySkippedUnderSampled(t *testing.T) {
	interval := DefaultConfig().SummaryIntervalMs
	windowStart := alignedWindowStart(interval)
	now := windowStart + interval + 130_000

	m, mem, _ := newTestManager(t, now)
	ctx := context.Background()

	// Nine clean beats: one short of the minimum, silently skipped.
	seedBeats(t, mem, "dev1", windowStart, make60(9, 1000))

	m.Register(ctx, "dev1")
	m.TriggerReprocess("dev1", windowStart)
	m.Tick(ctx)

	assert.Empty(t, mem.Summaries("dev1"))
}

func TestSummaryNotWrittenForOpenWindow(t *testing.T) {
	interval := DefaultConfig().SummaryIntervalMs
	windowStart := alignedWindowStart(interval)
	// The window is still open: its end is beyond the clock, even though
	// the beats themselves are older than the buffer.
	now := windowStart + 150_000

	m, mem, _ := newTestManager(t, now)
	ctx := context.Background()

	seedBeats(t, mem, "dev1", windowStart, make60(20, 1000))

	m.Register(ctx, "dev1")
	m.TriggerReprocess("dev1", windowStart)
	m.Tick(ctx)

	assert.Empty(t, mem.Summaries("dev1"))
}

// make60 builds a flat RR series.
func make60(n int, rr float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rr
	}
	return out
}
