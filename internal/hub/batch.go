// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hub

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/metrics"
	"github.com/tomtom215/polarhub/internal/models"
)

const (
	// gapToleranceMs is the slack applied to gap boundaries: a stretch of
	// stored beats only counts as gapped when the hole exceeds this, and
	// incoming points within this distance of a gap edge still qualify.
	gapToleranceMs = 300

	// queryPadMs widens the existing-beat query so boundary RR lengths on
	// either side of the upload are visible to gap detection.
	queryPadMs = 2000
)

// IngestBatch deduplicates a retroactive upload against stored beats,
// writes only the missing points, and rewinds the post-processor to the
// start of the upload.
//
// Unlike the real-time path, store failures surface to the caller: the
// client holds the data and retries the whole batch later.
func (h *Hub) IngestBatch(ctx context.Context, p models.BatchPayload) (models.BatchResult, error) {
	st, created := h.ensureState(p.Device)
	if created {
		h.register(ctx, p.Device)
	}

	st.pipeMu.Lock()
	result, err := h.ingestBatchLocked(ctx, p)
	st.pipeMu.Unlock()

	if err == nil {
		h.publishSnapshot()
	}
	return result, err
}

func (h *Hub) ingestBatchLocked(ctx context.Context, p models.BatchPayload) (models.BatchResult, error) {
	incoming := flattenBatch(p)
	result := models.BatchResult{Received: len(incoming)}
	if len(incoming) == 0 {
		return result, nil
	}

	firstTs := incoming[0].Timestamp
	lastTs := incoming[len(incoming)-1].Timestamp

	existing, err := h.store.QueryRange(ctx, p.Device, firstTs-queryPadMs, lastTs+queryPadMs)
	if err != nil {
		return result, fmt.Errorf("querying existing beats: %w", err)
	}

	newBeats := dedupe(incoming, existing, lastTs)
	result.New = len(newBeats)
	result.Duplicates = result.Received - result.New

	if len(newBeats) > 0 {
		// The adapter chunks large writes; a failure anywhere surfaces as
		// one failed upload the client retries in full (idempotent).
		if err := h.store.WriteBeats(ctx, newBeats); err != nil {
			return result, fmt.Errorf("writing batch beats: %w", err)
		}
		metrics.BeatsIngested.WithLabelValues(models.PathBatch).Add(float64(len(newBeats)))
	}
	metrics.BatchDuplicates.Add(float64(result.Duplicates))

	// Raw writes precede the rewind notification so the post-processor
	// never runs ahead of the data it was rewound for.
	if h.processor != nil {
		h.processor.TriggerReprocess(p.Device, firstTs)
	}

	logging.Info().
		Str("device", p.Device).
		Int("received", result.Received).
		Int("new", result.New).
		Int("duplicates", result.Duplicates).
		Msg("Batch upload deduplicated")
	return result, nil
}

// flattenBatch lays each beat group's RR series head-to-tail from its
// timestamp and returns the points sorted by timestamp.
func flattenBatch(p models.BatchPayload) []models.Beat {
	if p.Beats == nil {
		return nil
	}
	var out []models.Beat
	for _, group := range *p.Beats {
		if group.Timestamp == nil {
			continue
		}
		var offset float64
		for _, rr := range group.RRIntervals {
			out = append(out, models.Beat{
				Device:     p.Device,
				Timestamp:  *group.Timestamp + int64(math.Round(offset)),
				RRInterval: rr,
				HeartRate:  group.HeartRate,
				Source:     p.Source,
				Path:       models.PathBatch,
			})
			offset += rr
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

type gap struct {
	start, end int64
}

// dedupe retains the incoming points that fall into a detected gap of the
// stored series and are not already stored point-for-point. With nothing
// stored in range the whole upload is new.
func dedupe(incoming, existing []models.Beat, lastTs int64) []models.Beat {
	if len(existing) == 0 {
		return incoming
	}

	var gaps []gap
	for i := 0; i+1 < len(existing); i++ {
		covered := existing[i].Timestamp + int64(math.Round(existing[i].RRInterval))
		if existing[i+1].Timestamp-covered > gapToleranceMs {
			gaps = append(gaps, gap{start: covered, end: existing[i+1].Timestamp})
		}
	}

	firstTs := incoming[0].Timestamp
	if firstTs < existing[0].Timestamp-gapToleranceMs {
		gaps = append([]gap{{start: firstTs, end: existing[0].Timestamp}}, gaps...)
	}

	lastExisting := existing[len(existing)-1]
	coveredEnd := lastExisting.Timestamp + int64(math.Round(lastExisting.RRInterval))
	if lastTs > coveredEnd+gapToleranceMs {
		gaps = append(gaps, gap{start: coveredEnd, end: lastTs + queryPadMs})
	}

	stored := make(map[int64]struct{}, len(existing))
	for _, e := range existing {
		stored[e.Timestamp] = struct{}{}
	}

	var kept []models.Beat
	for _, point := range incoming {
		if _, dup := stored[point.Timestamp]; dup {
			continue
		}
		for _, g := range gaps {
			if point.Timestamp >= g.start-gapToleranceMs && point.Timestamp <= g.end+gapToleranceMs {
				kept = append(kept, point)
				break
			}
		}
	}
	return kept
}
