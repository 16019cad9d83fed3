// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package api

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/polarhub/internal/models"
)

// readEvent reads one SSE data frame.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return data.String()
		}
		data.WriteString(strings.TrimPrefix(line, "data: "))
	}
}

func TestEvents_StreamsSnapshots(t *testing.T) {
	ts := newTestServer(t)

	// Seed one device so the initial snapshot has content.
	ts.post(t, "/beats", map[string]any{
		"device":      "dev1",
		"timestamp":   1_700_000_000_000,
		"rrIntervals": []float64{1000, 1000, 1000, 1000},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.server.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// The connection opens with the current snapshot.
	var initial models.StatusSnapshot
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &initial))
	require.Len(t, initial.Devices, 1)
	assert.Equal(t, "dev1", initial.Devices[0].Device)
	assert.Equal(t, int64(4), initial.Devices[0].TotalBeats)

	// A new ingest broadcasts an updated snapshot to the open stream.
	ts.post(t, "/beats", map[string]any{
		"device":      "dev1",
		"timestamp":   1_700_000_010_000,
		"rrIntervals": []float64{1000},
	})

	var next models.StatusSnapshot
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &next))
	require.Len(t, next.Devices, 1)
	assert.Equal(t, int64(5), next.Devices[0].TotalBeats)
}
