/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/kv"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/state"
	"github.com/carverauto/solarpulse/pkg/transport"
)

type publishCall struct {
	tenant  string
	serial  string
	payload string
}

type fakeCommander struct {
	mu        sync.Mutex
	connected bool
	err       error
	calls     []publishCall
}

func (f *fakeCommander) Publish(_ context.Context, tenant, serial string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.calls = append(f.calls, publishCall{tenant: tenant, serial: serial, payload: string(payload)})

	return nil
}

func (f *fakeCommander) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]publishCall(nil), f.calls...)
}

func (f *fakeCommander) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

var errStatusStore = errors.New("status store down")

type fakeStatuses struct {
	rows map[int64]*models.MachineStatus
	err  error
}

func (f fakeStatuses) GetMachineStatus(_ context.Context, machineID int64) (*models.MachineStatus, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}

	row, ok := f.rows[machineID]

	return row, ok, nil
}

type testEnv struct {
	hub       *realtime.Hub
	engine    *state.Engine
	commander *fakeCommander
	server    *httptest.Server
}

func newTestEnv(t *testing.T, rt models.RealtimeConfig, extra ...func(*APIServer)) *testEnv {
	t.Helper()

	log := logger.NewTestLogger()
	env := &testEnv{
		hub:       realtime.NewHub(&rt, log, nil),
		engine:    state.NewEngine(kv.NewMemoryStore(0), log),
		commander: &fakeCommander{connected: true},
	}

	options := append([]func(*APIServer){
		WithSubscribers(env.hub),
		WithStateReader(env.engine),
		WithCommander(env.commander),
	}, extra...)

	env.server = httptest.NewServer(NewAPIServer(rt, models.CORSConfig{}, log, options...).Handler())
	t.Cleanup(env.server.Close)

	return env
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()

	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame map[string]any
	require.NoError(t, c.ReadJSON(&frame))

	return frame
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, models.RealtimeConfig{})

	status, body := env.get(t, "/realtime/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","mqtt_connected":true,"groups":0,"subscribers":0}`, body)

	env.commander.mu.Lock()
	env.commander.connected = false
	env.commander.mu.Unlock()

	_, body = env.get(t, "/realtime/health")
	assert.JSONEq(t, `{"status":"degraded","mqtt_connected":false,"groups":0,"subscribers":0}`, body)
}

func TestLiveState(t *testing.T) {
	env := newTestEnv(t, models.RealtimeConfig{})

	_, err := env.engine.Merge(context.Background(), 5, map[string]any{"battery": 13.1, "extra": map[string]any{"temp": 41.0}})
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "cached machine",
			path:       "/api/machines/5/live",
			wantStatus: http.StatusOK,
			wantBody:   `{"machine_id":5,"state":{"battery":13.1,"extra":{"temp":41}}}`,
		},
		{
			name:       "no state yet",
			path:       "/api/machines/6/live",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"message":"no state for machine","status":404}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.get(t, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}

	status, _ := env.get(t, "/api/machines/abc/live")
	assert.Equal(t, http.StatusNotFound, status, "non-numeric ids do not match the route")
}

func TestMachineStatus(t *testing.T) {
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := map[int64]*models.MachineStatus{
		5: {MachineID: 5, Status: "Offline", EnergyValue: 2.5, Timestamp: updated},
	}

	tests := []struct {
		name       string
		statuses   StatusReader
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "stored status",
			statuses:   fakeStatuses{rows: rows},
			path:       "/api/machines/5/status",
			wantStatus: http.StatusOK,
			wantBody: `{"machine_id":5,"status":"Offline","energy_value":2.5,"water_value":0,` +
				`"area_value":0,"timestamp":"2025-06-01T12:00:00Z"}`,
		},
		{
			name:       "never reported",
			statuses:   fakeStatuses{rows: rows},
			path:       "/api/machines/6/status",
			wantStatus: http.StatusNotFound,
			wantBody:   `{"message":"no status for machine","status":404}`,
		},
		{
			name:       "store failure",
			statuses:   fakeStatuses{err: errStatusStore},
			path:       "/api/machines/5/status",
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"message":"failed to read machine status","status":500}`,
		},
		{
			name:       "no store",
			path:       "/api/machines/5/status",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"message":"status store unavailable","status":503}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var extra []func(*APIServer)
			if tt.statuses != nil {
				extra = append(extra, WithStatusReader(tt.statuses))
			}

			env := newTestEnv(t, models.RealtimeConfig{}, extra...)

			status, body := env.get(t, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestPostCommand(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		publishErr error
		wantStatus int
		wantCalls  int
	}{
		{name: "published", body: `{"pump":"on"}`, wantStatus: http.StatusAccepted, wantCalls: 1},
		{name: "array body", body: `[1,2]`, wantStatus: http.StatusBadRequest},
		{name: "null body", body: `null`, wantStatus: http.StatusBadRequest},
		{name: "broker down", body: `{"pump":"on"}`, publishErr: transport.ErrNotConnected, wantStatus: http.StatusServiceUnavailable},
		{name: "publish failure", body: `{"pump":"on"}`, publishErr: errors.New("timeout"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, models.RealtimeConfig{})
			env.commander.err = tt.publishErr

			resp, err := http.Post(env.server.URL+"/api/companies/7/machines/SN-42/command", "application/json",
				strings.NewReader(tt.body))
			require.NoError(t, err)

			_ = resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			calls := env.commander.published()
			assert.Len(t, calls, tt.wantCalls)

			if tt.wantCalls > 0 {
				assert.Equal(t, publishCall{tenant: "7", serial: "SN-42", payload: `{"pump":"on"}`}, calls[0])
			}
		})
	}
}

func TestMachineSubscriptionGetsSnapshotThenDeltas(t *testing.T) {
	env := newTestEnv(t, models.RealtimeConfig{HeartbeatInterval: models.Duration(time.Hour)})

	_, err := env.engine.Merge(context.Background(), 5, map[string]any{"battery": 13.1})
	require.NoError(t, err)

	conn := env.dial(t, "/realtime/5")

	assert.Equal(t, map[string]any{
		"type":       "snapshot",
		"machine_id": float64(5),
		"data":       map[string]any{"battery": 13.1},
	}, readFrame(t, conn))

	key := realtime.MachineGroup(5)
	require.Eventually(t, func() bool { return env.hub.GroupSize(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.hub.Broadcast(context.Background(), key,
		models.EnvelopeFor(models.KindTelemetry, 5, map[string]any{"water": 70})))

	frame := readFrame(t, conn)
	assert.Equal(t, "telemetry", frame["type"])
	assert.Equal(t, map[string]any{"water": float64(70)}, frame["data"])

	_ = conn.Close()
	require.Eventually(t, func() bool { return env.hub.GroupSize(key) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSnapshotDisabled(t *testing.T) {
	off := false
	env := newTestEnv(t, models.RealtimeConfig{HeartbeatInterval: models.Duration(20 * time.Millisecond), SendSnapshot: &off})

	_, err := env.engine.Merge(context.Background(), 5, map[string]any{"battery": 13.1})
	require.NoError(t, err)

	conn := env.dial(t, "/realtime/5")

	assert.Equal(t, map[string]any{"type": "heartbeat"}, readFrame(t, conn))
}

func TestCompanySubscription(t *testing.T) {
	env := newTestEnv(t, models.RealtimeConfig{HeartbeatInterval: models.Duration(time.Hour)})

	conn := env.dial(t, "/realtime/company/7")

	key := realtime.CompanyGroup(7)
	require.Eventually(t, func() bool { return env.hub.GroupSize(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.hub.Broadcast(context.Background(), key,
		models.EnvelopeFor(models.KindStatus, 5, map[string]any{"status": "Offline"})))

	frame := readFrame(t, conn)
	assert.Equal(t, "status", frame["type"])
	assert.Equal(t, float64(5), frame["machine_id"])

	status, body := env.get(t, "/realtime/health")
	assert.Equal(t, http.StatusOK, status)

	var health healthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, 1, health.Subscribers)
}

func TestMetricsRoute(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("solarpulse_messages 1\n"))
	})

	env := newTestEnv(t, models.RealtimeConfig{}, WithMetricsHandler(metricsHandler))

	status, body := env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "solarpulse_messages")
}
