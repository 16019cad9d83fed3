// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hrv

import (
	"math"
	"sort"
)

// thresholdScale and thresholdFloorMs parameterize the adaptive artifact
// thresholds: Th = max(thresholdScale * QD, thresholdFloorMs).
const (
	thresholdScale   = 5.2
	thresholdFloorMs = 50.0
)

// quantile returns the q-quantile of a sorted sample using midpoint
// interpolation: when the index q*(n-1) falls between two order statistics
// their average is taken. Linear interpolation is deliberately not used;
// the classifier's detection margins depend on the midpoint estimator.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	h := q * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return (sorted[lo] + sorted[hi]) / 2
}

// quartileDeviation returns (Q3 - Q1) / 2 of the sample.
func quartileDeviation(sample []float64) float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	return (quantile(sorted, 0.75) - quantile(sorted, 0.25)) / 2
}

// median returns the middle value of the sample (average of the two middle
// values for even lengths).
func median(sample []float64) float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	return quantile(sorted, 0.5)
}

// rollingThresholds computes the adaptive threshold series over a centered
// window of the given size. Windows shrink at the edges; they never wrap or
// pad. A zero quartile deviation yields the floor.
func rollingThresholds(series []float64, window int) []float64 {
	n := len(series)
	half := window / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		th := thresholdScale * quartileDeviation(series[lo:hi])
		if th < thresholdFloorMs {
			th = thresholdFloorMs
		}
		out[i] = th
	}
	return out
}

// rollingMedian computes the centered rolling median of the series with the
// given window size, shrinking at the edges.
func rollingMedian(series []float64, window int) []float64 {
	n := len(series)
	half := window / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		out[i] = median(series[lo:hi])
	}
	return out
}

// mean returns the arithmetic mean, or 0 for an empty sample.
func mean(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}
