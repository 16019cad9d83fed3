// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/polarhub/internal/config"
	"github.com/tomtom215/polarhub/internal/models"
)

// beatColumns is the field list selected for every beat query.
const beatColumns = "rr_interval, heart_rate, source, path, rr_clean, hr_clean, artifact_type"

var _ Store = (*Influx)(nil)

// Influx is the Store implementation over the InfluxDB 1.x HTTP API.
type Influx struct {
	client   *resty.Client
	database string
}

// NewInflux creates an Influx store adapter from configuration. The resty
// client carries the configured request deadline; per-call contexts cancel
// earlier.
func NewInflux(cfg config.InfluxConfig) *Influx {
	client := resty.New().
		SetBaseURL(cfg.URL()).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Influx{
		client:   client,
		database: cfg.Database,
	}
}

// Ping verifies connectivity against /ping.
func (s *Influx) Ping(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get("/ping")
	if err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: ping returned %s", ErrUnavailable, resp.Status())
	}
	return nil
}

// WriteBeats persists raw beats in line-protocol chunks.
func (s *Influx) WriteBeats(ctx context.Context, beats []models.Beat) error {
	for len(beats) > 0 {
		chunk := beats
		if len(chunk) > maxPointsPerWrite {
			chunk = chunk[:maxPointsPerWrite]
		}
		beats = beats[len(chunk):]

		lines := make([]string, 0, len(chunk))
		for _, b := range chunk {
			fields := []fieldValue{{key: "rr_interval", num: b.RRInterval}}
			if b.HeartRate > 0 {
				fields = append(fields, fieldValue{key: "heart_rate", num: b.HeartRate})
			}
			if b.Source != "" {
				fields = append(fields, fieldValue{key: "source", str: b.Source, isStr: true})
			}
			if b.Path != "" {
				fields = append(fields, fieldValue{key: "path", str: b.Path, isStr: true})
			}
			lines = append(lines, line(MeasurementRaw, map[string]string{"device": b.Device}, fields, b.Timestamp))
		}
		if err := s.write(ctx, lines); err != nil {
			return err
		}
	}
	return nil
}

// WriteCanonical merge-writes the canonical fields at ts.
func (s *Influx) WriteCanonical(ctx context.Context, device string, ts int64, rrClean, hrClean float64, artifactType string) error {
	fields := []fieldValue{
		{key: "rr_clean", num: rrClean},
		{key: "hr_clean", num: hrClean},
		{key: "artifact_type", str: artifactType, isStr: true},
	}
	return s.write(ctx, []string{line(MeasurementRaw, map[string]string{"device": device}, fields, ts)})
}

// WriteRealtime persists one dashboard HRV sample.
func (s *Influx) WriteRealtime(ctx context.Context, sample models.RealtimeSample) error {
	fields := []fieldValue{
		{key: "rmssd", num: sample.RMSSD},
		{key: "sdnn", num: sample.SDNN},
		{key: "pnn50", num: sample.PNN50},
		{key: "hr", num: float64(sample.HR)},
	}
	return s.write(ctx, []string{line(MeasurementRealtime, map[string]string{"device": sample.Device}, fields, sample.Timestamp)})
}

// WriteSummary persists one five-minute summary at the window end.
func (s *Influx) WriteSummary(ctx context.Context, sum models.Summary) error {
	tags := map[string]string{"device": sum.Device}
	if sum.Posture != "" {
		tags["posture"] = sum.Posture
	}
	fields := []fieldValue{
		{key: "rmssd", num: sum.RMSSD},
		{key: "sdnn", num: sum.SDNN},
		{key: "pnn50", num: sum.PNN50},
		{key: "heart_rate", num: float64(sum.HeartRate)},
		{key: "sample_count", num: float64(sum.SampleCount)},
		{key: "artifact_count", num: float64(sum.ArtifactCount)},
	}
	return s.write(ctx, []string{line(MeasurementSummary, tags, fields, sum.Timestamp)})
}

// WritePosture persists a posture transition.
func (s *Influx) WritePosture(ctx context.Context, ts int64, p models.PosturePayload) error {
	tags := map[string]string{
		"from_posture": p.FromPosture,
		"to_posture":   p.ToPosture,
	}
	if p.Source != "" {
		tags["source"] = p.Source
	}
	fields := []fieldValue{
		{key: "from_duration_seconds", num: p.FromDurationSeconds},
		{key: "confidence", num: p.Confidence},
	}
	return s.write(ctx, []string{line(MeasurementPosture, tags, fields, ts)})
}

// WriteStatus persists an allow-listed relay status event.
func (s *Influx) WriteStatus(ctx context.Context, ts int64, p models.StatusPayload) error {
	tags := map[string]string{
		"category": p.Category,
		"event":    p.Event,
	}
	if p.Source != "" {
		tags["source"] = p.Source
	}
	if p.Device != "" {
		tags["device"] = p.Device
	}
	var fields []fieldValue
	for k, v := range p.Fields {
		fields = append(fields, fieldValue{key: k, num: v})
	}
	if len(fields) == 0 {
		fields = []fieldValue{{key: "value", num: 1}}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })
	return s.write(ctx, []string{line(MeasurementStatus, tags, fields, ts)})
}

// QueryRange returns raw beats with startMs <= time <= endMs.
func (s *Influx) QueryRange(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE device = '%s' AND time >= %dms AND time <= %dms ORDER BY time ASC",
		beatColumns, MeasurementRaw, escapeQL(device), startMs, endMs)
	return s.queryBeats(ctx, device, q)
}

// QueryBefore returns the newest limit beats before beforeMs with a
// measured rr_interval, oldest-first.
func (s *Influx) QueryBefore(ctx context.Context, device string, beforeMs int64, limit int) ([]models.Beat, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE device = '%s' AND time < %dms AND rr_interval > 0 ORDER BY time DESC LIMIT %d",
		beatColumns, MeasurementRaw, escapeQL(device), beforeMs, limit)
	beats, err := s.queryBeats(ctx, device, q)
	if err != nil {
		return nil, err
	}
	// The store returns them newest-first; the classifier wants
	// chronological order.
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}
	return beats, nil
}

// QueryAfter returns the oldest limit beats after afterMs with a measured
// rr_interval.
func (s *Influx) QueryAfter(ctx context.Context, device string, afterMs int64, limit int) ([]models.Beat, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE device = '%s' AND time > %dms AND rr_interval > 0 ORDER BY time ASC LIMIT %d",
		beatColumns, MeasurementRaw, escapeQL(device), afterMs, limit)
	return s.queryBeats(ctx, device, q)
}

// QueryClean returns beats carrying a positive rr_clean in [startMs, endMs).
func (s *Influx) QueryClean(ctx context.Context, device string, startMs, endMs int64) ([]models.Beat, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE device = '%s' AND time >= %dms AND time < %dms AND rr_clean > 0 ORDER BY time ASC",
		beatColumns, MeasurementRaw, escapeQL(device), startMs, endMs)
	return s.queryBeats(ctx, device, q)
}

// LastCleanTimestamp returns the newest classified timestamp.
func (s *Influx) LastCleanTimestamp(ctx context.Context, device string) (int64, bool, error) {
	q := fmt.Sprintf("SELECT last(rr_clean) FROM %s WHERE device = '%s' AND rr_clean > 0",
		MeasurementRaw, escapeQL(device))
	series, err := s.query(ctx, q)
	if err != nil {
		return 0, false, err
	}
	if len(series) == 0 || len(series[0].Values) == 0 || len(series[0].Values[0]) == 0 {
		return 0, false, nil
	}
	ts, ok := series[0].Values[0][0].(float64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected time column type %T", series[0].Values[0][0])
	}
	return int64(ts), true, nil
}

// write sends line-protocol lines to /write with millisecond precision.
func (s *Influx) write(ctx context.Context, lines []string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"db": s.database, "precision": "ms"}).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(strings.Join(lines, "\n")).
		Post("/write")
	if err != nil {
		return fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: write returned %s: %s", ErrUnavailable, resp.Status(), resp.String())
	}
	return nil
}

type influxSeries struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

type influxResponse struct {
	Results []struct {
		Series []influxSeries `json:"series"`
		Err    string         `json:"error"`
	} `json:"results"`
	Err string `json:"error"`
}

// query runs one InfluxQL statement with millisecond epoch timestamps.
func (s *Influx) query(ctx context.Context, q string) ([]influxSeries, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"db": s.database, "q": q, "epoch": "ms"}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: query returned %s: %s", ErrUnavailable, resp.Status(), resp.String())
	}

	var parsed influxResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	if parsed.Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	if parsed.Results[0].Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Results[0].Err)
	}
	return parsed.Results[0].Series, nil
}

// queryBeats runs a beat query and maps the result series onto Beats.
func (s *Influx) queryBeats(ctx context.Context, device, q string) ([]models.Beat, error) {
	series, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(series[0].Columns))
	for i, c := range series[0].Columns {
		col[c] = i
	}

	num := func(row []any, name string) float64 {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return 0
		}
		if v, ok := row[idx].(float64); ok {
			return v
		}
		return 0
	}
	str := func(row []any, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		if v, ok := row[idx].(string); ok {
			return v
		}
		return ""
	}

	beats := make([]models.Beat, 0, len(series[0].Values))
	for _, row := range series[0].Values {
		beats = append(beats, models.Beat{
			Device:       device,
			Timestamp:    int64(num(row, "time")),
			RRInterval:   num(row, "rr_interval"),
			HeartRate:    num(row, "heart_rate"),
			Source:       str(row, "source"),
			Path:         str(row, "path"),
			RRClean:      num(row, "rr_clean"),
			HRClean:      num(row, "hr_clean"),
			ArtifactType: str(row, "artifact_type"),
		})
	}
	return beats, nil
}

// fieldValue is one line-protocol field.
type fieldValue struct {
	key   string
	num   float64
	str   string
	isStr bool
}

// line renders one line-protocol point with a millisecond timestamp. Tags
// are sorted for deterministic output.
func line(measurement string, tags map[string]string, fields []fieldValue, ts int64) string {
	var b strings.Builder
	b.WriteString(escapeTag(measurement))

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	b.WriteByte(' ')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(f.key))
		b.WriteByte('=')
		if f.isStr {
			b.WriteByte('"')
			b.WriteString(escapeStringField(f.str))
			b.WriteByte('"')
		} else {
			b.WriteString(strconv.FormatFloat(f.num, 'f', -1, 64))
		}
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(ts, 10))
	return b.String()
}

var tagEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

var stringFieldEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeStringField(s string) string {
	return stringFieldEscaper.Replace(s)
}

// escapeQL escapes a string literal for interpolation into InfluxQL.
func escapeQL(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
