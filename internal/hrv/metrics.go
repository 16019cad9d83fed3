// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package hrv

import "math"

// Metrics holds the time-domain HRV measures over one RR sequence.
type Metrics struct {
	// RMSSD is the root mean square of successive RR differences (ms).
	RMSSD float64
	// SDNN is the population standard deviation of the RR values (ms).
	SDNN float64
	// PNN50 is the percentage of successive differences exceeding 50 ms.
	PNN50 float64
	// MeanRR is the arithmetic mean of the RR values (ms).
	MeanRR float64
}

// minMetricsLen is the fewest RR values the metrics are defined over.
const minMetricsLen = 2

// Compute derives RMSSD, SDNN and pNN50 from a cleaned RR sequence.
// Returns false when the sequence is too short or contains non-finite
// values.
func Compute(rr []float64) (Metrics, bool) {
	if len(rr) < minMetricsLen {
		return Metrics{}, false
	}
	for _, v := range rr {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Metrics{}, false
		}
	}

	m := mean(rr)

	var variance float64
	for _, v := range rr {
		d := v - m
		variance += d * d
	}
	variance /= float64(len(rr))

	var sumSq float64
	var over50 int
	diffs := len(rr) - 1
	for i := 1; i < len(rr); i++ {
		d := rr[i] - rr[i-1]
		sumSq += d * d
		if math.Abs(d) > 50 {
			over50++
		}
	}

	return Metrics{
		RMSSD:  math.Sqrt(sumSq / float64(diffs)),
		SDNN:   math.Sqrt(variance),
		PNN50:  100 * float64(over50) / float64(diffs),
		MeanRR: m,
	}, true
}

// HeartRate converts a mean RR interval in milliseconds to beats per
// minute, rounded to the nearest integer. Returns 0 for a non-positive
// mean.
func HeartRate(meanRR float64) int {
	if meanRR <= 0 {
		return 0
	}
	return int(math.Round(60000 / meanRR))
}

// CleanHeartRate converts a corrected RR interval to bpm rounded to 0.01,
// the resolution stored in the hr_clean field.
func CleanHeartRate(rrClean float64) float64 {
	if rrClean <= 0 {
		return 0
	}
	return math.Round(60000/rrClean*100) / 100
}
