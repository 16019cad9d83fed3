// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/polarhub/internal/models"
)

func rawBeat(device string, ts int64, rr float64) models.Beat {
	return models.Beat{Device: device, Timestamp: ts, RRInterval: rr, Path: models.PathRealtime}
}

func TestMemory_WriteIsIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	beats := []models.Beat{rawBeat("dev1", 1000, 600), rawBeat("dev1", 1600, 610)}
	require.NoError(t, s.WriteBeats(ctx, beats))
	require.NoError(t, s.WriteBeats(ctx, beats))

	assert.Equal(t, 2, s.PointCount(MeasurementRaw))
}

func TestMemory_MergeByField(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.WriteBeats(ctx, []models.Beat{rawBeat("dev1", 1000, 600)}))
	require.NoError(t, s.WriteCanonical(ctx, "dev1", 1000, 605, 99.17, "longshort"))

	got, err := s.QueryRange(ctx, "dev1", 0, 2000)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Both the original ingest fields and the merged canonical fields
	// survive on the same point.
	assert.Equal(t, 600.0, got[0].RRInterval)
	assert.Equal(t, models.PathRealtime, got[0].Path)
	assert.Equal(t, 605.0, got[0].RRClean)
	assert.Equal(t, "longshort", got[0].ArtifactType)
	assert.Equal(t, 1, s.PointCount(MeasurementRaw))
}

func TestMemory_QueryFilters(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.WriteBeats(ctx, []models.Beat{
		rawBeat("dev1", 1000, 600),
		rawBeat("dev1", 1600, 610),
		rawBeat("dev1", 2210, 605),
		rawBeat("dev2", 1500, 700),
	}))
	// Synthetic beat: canonical fields only, no rr_interval.
	require.NoError(t, s.WriteCanonical(ctx, "dev1", 1905, 605, 99.17, "missed_inserted"))

	t.Run("range is inclusive and per-device", func(t *testing.T) {
		got, err := s.QueryRange(ctx, "dev1", 1000, 2210)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, int64(1000), got[0].Timestamp)
		assert.Equal(t, int64(2210), got[3].Timestamp)
	})

	t.Run("before excludes synthetic beats", func(t *testing.T) {
		got, err := s.QueryBefore(ctx, "dev1", 2210, 91)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1000), got[0].Timestamp)
		assert.Equal(t, int64(1600), got[1].Timestamp)
	})

	t.Run("before keeps newest when over limit", func(t *testing.T) {
		got, err := s.QueryBefore(ctx, "dev1", 5000, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2210), got[0].Timestamp)
	})

	t.Run("after excludes synthetic beats", func(t *testing.T) {
		got, err := s.QueryAfter(ctx, "dev1", 1600, 91)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2210), got[0].Timestamp)
	})

	t.Run("clean filter", func(t *testing.T) {
		got, err := s.QueryClean(ctx, "dev1", 0, 5000)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(1905), got[0].Timestamp)
	})

	t.Run("last clean timestamp", func(t *testing.T) {
		ts, ok, err := s.LastCleanTimestamp(ctx, "dev1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1905), ts)

		_, ok, err = s.LastCleanTimestamp(ctx, "dev2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemory_ErrorInjection(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	s.SetWriteError(boom)
	assert.ErrorIs(t, s.WriteBeats(ctx, []models.Beat{rawBeat("dev1", 1, 600)}), boom)
	s.SetWriteError(nil)
	assert.NoError(t, s.WriteBeats(ctx, []models.Beat{rawBeat("dev1", 1, 600)}))

	s.SetQueryError(boom)
	_, err := s.QueryRange(ctx, "dev1", 0, 10)
	assert.ErrorIs(t, err, boom)
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	s := NewMemory()
	boom := errors.New("down")
	s.SetWriteError(boom)

	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 3
	b := NewBreaker(s, cfg)
	ctx := context.Background()

	beat := []models.Beat{rawBeat("dev1", 1, 600)}
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.WriteBeats(ctx, beat), boom)
	}
	assert.Equal(t, "open", b.State())

	// Open breaker rejects without reaching the store.
	s.SetWriteError(nil)
	err := b.WriteBeats(ctx, beat)
	assert.Error(t, err)
	assert.Equal(t, 0, s.PointCount(MeasurementRaw))
}
