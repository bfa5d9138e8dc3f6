package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/predict"
	"codeberg.org/mutker/vehicled/internal/server"
	"codeberg.org/mutker/vehicled/internal/sim"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

type fixture struct {
	store  *store.Store
	engine *sim.Engine
	ts     *httptest.Server
}

// newFixture serves the router over httptest. The engine interval is long
// enough that no background tick interferes with assertions.
func newFixture(t *testing.T) fixture {
	t.Helper()

	st := store.New()
	engine := sim.New(st, rand.New(rand.NewSource(1)), time.Hour)
	srv := server.New(config.Server{Listen: "127.0.0.1:0"}, st, engine, "test")
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		engine.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return fixture{store: st, engine: engine, ts: ts}
}

func (f fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)

	return resp
}

func (f fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func snapshotAt(ts time.Time, speed float64) vehicle.Snapshot {
	s := vehicle.DefaultSnapshot(ts)
	s.Speed = speed

	return s
}

func TestRootEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Service   string            `json:"service"`
		Version   string            `json:"version"`
		Status    string            `json:"status"`
		Endpoints map[string]string `json:"endpoints"`
	}
	decodeJSON(t, resp, &out)

	assert.Equal(t, "vehicled", out.Service)
	assert.Equal(t, "test", out.Version)
	assert.Equal(t, "operational", out.Status)
	assert.Equal(t, "/vehicle/all", out.Endpoints["vehicle"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeJSON(t, resp, &out)
	assert.Equal(t, "healthy", out["status"])
}

func TestVehicleAllReturnsCurrent(t *testing.T) {
	f := newFixture(t)

	f.store.Update(context.Background(), snapshotAt(time.Now(), 118.5))

	resp := f.get(t, "/vehicle/all")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot vehicle.Snapshot
	decodeJSON(t, resp, &snapshot)
	assert.InDelta(t, 118.5, snapshot.Speed, 1e-9)
	assert.Equal(t, vehicle.VariantEV, snapshot.Variant)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		f.store.Update(ctx, snapshotAt(base.Add(time.Duration(i)*time.Second), float64(i)))
	}

	resp := f.get(t, "/vehicle/history?limit=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Count   int                `json:"count"`
		History []vehicle.Snapshot `json:"history"`
	}
	decodeJSON(t, resp, &out)

	require.Equal(t, 3, out.Count)
	require.Len(t, out.History, 3)
	// Oldest first within the newest three.
	assert.InDelta(t, 2.0, out.History[0].Speed, 1e-9)
	assert.InDelta(t, 4.0, out.History[2].Speed, 1e-9)
}

func TestHistoryLimitClampedAndValidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.store.Update(ctx, snapshotAt(time.Now(), float64(i)))
	}

	var out struct {
		Count int `json:"count"`
	}

	resp := f.get(t, "/vehicle/history?limit=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &out)
	assert.Equal(t, 1, out.Count)

	resp = f.get(t, "/vehicle/history?limit=100000")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &out)
	assert.Equal(t, 5, out.Count)

	resp = f.get(t, "/vehicle/history?limit=sixty")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlertsEndpointNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now()

	for i, signal := range []string{"speed", "brake_position", "battery_soc"} {
		added := f.store.AddAlert(ctx, vehicle.Alert{
			ID:        uuid.NewString(),
			Type:      vehicle.AlertHighSpeedStress,
			Severity:  vehicle.SeverityWarning,
			Message:   fmt.Sprintf("alert %d", i),
			Signal:    signal,
			Value:     float64(i),
			Threshold: "test",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.True(t, added)
	}

	resp := f.get(t, "/vehicle/alerts?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Count  int             `json:"count"`
		Alerts []vehicle.Alert `json:"alerts"`
	}
	decodeJSON(t, resp, &out)

	require.Equal(t, 2, out.Count)
	assert.Equal(t, "battery_soc", out.Alerts[0].Signal)
	assert.Equal(t, "brake_position", out.Alerts[1].Signal)
}

func TestSimulationEndpoints(t *testing.T) {
	f := newFixture(t)

	var state sim.State

	resp := f.post(t, "/vehicle/simulate/start?variant=ICE", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &state)
	assert.True(t, state.Running)
	assert.Equal(t, vehicle.VariantICE, state.Variant)

	resp = f.post(t, "/vehicle/simulate/start?variant=EV", "")
	decodeJSON(t, resp, &state)
	assert.True(t, state.Running)
	assert.Equal(t, vehicle.VariantICE, state.Variant)
	assert.Equal(t, "simulator already running", state.Message)

	resp = f.get(t, "/vehicle/simulate/status")
	decodeJSON(t, resp, &state)
	assert.True(t, state.Running)

	resp = f.post(t, "/vehicle/simulate/stop", "")
	decodeJSON(t, resp, &state)
	assert.False(t, state.Running)

	resp = f.post(t, "/vehicle/simulate/stop", "")
	decodeJSON(t, resp, &state)
	assert.Equal(t, "simulator not running", state.Message)
}

func TestResetEndpoint(t *testing.T) {
	f := newFixture(t)

	f.store.Update(context.Background(), snapshotAt(time.Now(), 99))

	resp := f.post(t, "/vehicle/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeJSON(t, resp, &out)
	assert.Equal(t, "reset", out["status"])

	var snapshot vehicle.Snapshot
	decodeJSON(t, f.get(t, "/vehicle/all"), &snapshot)
	assert.InDelta(t, 60.0, snapshot.Speed, 1e-9)
}

func TestInjectEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/external/telemetry", `{"speed": 42.5, "battery_soc": 55}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var merged vehicle.Snapshot
	decodeJSON(t, resp, &merged)
	assert.InDelta(t, 42.5, merged.Speed, 1e-9)
	assert.InDelta(t, 55.0, merged.Battery.SoC, 1e-9)
	// Untouched fields keep their defaults.
	assert.InDelta(t, 15234.5, merged.Odometer, 1e-9)

	var current vehicle.Snapshot
	decodeJSON(t, f.get(t, "/vehicle/all"), &current)
	assert.InDelta(t, 42.5, current.Speed, 1e-9)
}

func TestInjectRejectsBadPayload(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/external/telemetry", `{"speed": "fast"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredictiveEndpointEmptyStore(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/predictive/analysis")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report predict.Report
	decodeJSON(t, resp, &report)
	assert.Empty(t, report.Predictions)
	assert.Nil(t, report.DrivingScore)
	assert.Equal(t, 0, report.SamplesAnalyzed)
}

func TestPredictiveEndpointWithData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 20; i++ {
		snapshot := snapshotAt(base.Add(time.Duration(i)*time.Second), 60)
		snapshot.Battery.SoC = 90 - float64(i)*0.5
		f.store.Update(ctx, snapshot)
	}

	resp := f.get(t, "/predictive/analysis")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report predict.Report
	decodeJSON(t, resp, &report)

	require.Len(t, report.Predictions, 5)
	assert.Equal(t, "battery_soc", report.Predictions[0].Signal)
	require.NotNil(t, report.DrivingScore)
	assert.Equal(t, 40, report.SamplesAnalyzed)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/metrics")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vehicled_")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/vehicle/reset")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = f.post(t, "/vehicle/all", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
