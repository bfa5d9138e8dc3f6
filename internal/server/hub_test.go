package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/vehicled/internal/vehicle"
)

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/telemetry"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestWebSocketReceivesTelemetry(t *testing.T) {
	f := newFixture(t)

	f.store.Update(context.Background(), snapshotAt(time.Now(), 123.4))

	conn := dialWS(t, f.ts)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type       string           `json:"type"`
		Data       vehicle.Snapshot `json:"data"`
		SimRunning bool             `json:"sim_running"`
		AlertCount int              `json:"alert_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))

	assert.Equal(t, "telemetry", frame.Type)
	assert.InDelta(t, 123.4, frame.Data.Speed, 1e-9)
	assert.False(t, frame.SimRunning)
	assert.Equal(t, 0, frame.AlertCount)
}

func TestWebSocketPingPong(t *testing.T) {
	f := newFixture(t)

	conn := dialWS(t, f.ts)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Telemetry frames may interleave with the reply.
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		if bytes.Contains(raw, []byte(`"pong"`)) {
			return
		}
	}
}

func TestWebSocketSurvivesClientChurn(t *testing.T) {
	f := newFixture(t)

	first := dialWS(t, f.ts)
	first.Close()

	// A fresh client still gets frames after the first one dropped.
	second := dialWS(t, f.ts)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))

	_, raw, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"telemetry"`)
}
