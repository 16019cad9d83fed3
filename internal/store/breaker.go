// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package store

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/models"
)

// BreakerConfig parameterizes the store circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns conservative defaults: trip after five
// consecutive failures, retry after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "influx",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

var _ Store = (*Breaker)(nil)

// Breaker wraps a Store with a circuit breaker so a dead database fails
// fast instead of stalling every ingest request on its timeout.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps the given store.
func NewBreaker(inner Store, cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state change")
		},
	}
	return &Breaker{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the breaker state for monitoring.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) exec(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func execValue[T any](b *Breaker, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Ping implements Store.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.exec(func() error { return b.inner.Ping(ctx) })
}

// WriteBeats implements Store.
func (b *Breaker) WriteBeats(ctx context.Context, beats []models.Beat) error {
	return b.exec(func() error { return b.inner.WriteBeats(ctx, beats) })
}

// WriteCanonical implements Store.
func (b *Breaker) WriteCanonical(ctx context.Context, device string, ts int64, rrClean, hrClean float64, artifactType string) error {
	return b.exec(func() error {
		return b.inner.WriteCanonical(ctx, device, ts, rrClean, hrClean, artifactType)
	})
}

// WriteRealtime implements Store.
func (b *Breaker) WriteRealtime(ctx context.Context, s models.RealtimeSample) error {
	return b.exec(func() error { return b.inner.WriteRealtime(ctx, s) })
}

// WriteSummary implements Store.
func (b *Breaker) WriteSummary(ctx context.Context, s models.Summary) error {
	return b.exec(func() error { return b.inner.WriteSummary(ctx, s) })
}

// WritePosture implements Store.
func (b *Breaker) WritePosture(ctx context.Context, ts int64, p models.PosturePayload) error {
	return b.exec(func() error { return b.inner.WritePosture(ctx, ts, p) })
}

// WriteStatus implements Store.
func (b *Breaker) WriteStatus(ctx context.Context, ts int64, p models.StatusPayload) error {
	return b.exec(func() error { return b.inner.WriteStatus(ctx, ts, p) })
}

// QueryRange implements Store.
func (b *Breaker) QueryRange(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	return execValue(b, func() ([]models.Beat, error) {
		return b.inner.QueryRange(ctx, device, startMs, endMs)
	})
}

// QueryBefore implements Store.
func (b *Breaker) QueryBefore(ctx context.Context, device string, beforeMs int64, limit int) ([]models.Beat, error) {
	return execValue(b, func() ([]models.Beat, error) {
		return b.inner.QueryBefore(ctx, device, beforeMs, limit)
	})
}

// QueryAfter implements Store.
func (b *Breaker) QueryAfter(ctx context.Context, device string, afterMs int64, limit int) ([]models.Beat, error) {
	return execValue(b, func() ([]models.Beat, error) {
		return b.inner.QueryAfter(ctx, device, afterMs, limit)
	})
}

// QueryClean implements Store.
func (b *Breaker) QueryClean(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	return execValue(b, func() ([]models.Beat, error) {
		return b.inner.QueryClean(ctx, device, startMs, endMs)
	})
}

// LastCleanTimestamp implements Store.
func (b *Breaker) LastCleanTimestamp(ctx context.Context, device string) (int64, bool, error) {
	type result struct {
		ts int64
		ok bool
	}
	r, err := execValue(b, func() (result, error) {
		ts, ok, err := b.inner.LastCleanTimestamp(ctx, device)
		return result{ts: ts, ok: ok}, err
	})
	return r.ts, r.ok, err
}
