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

package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/models"
)

func serveHub(t *testing.T, hub *Hub, key GroupKey, initial InitialFrame) string {
	t.Helper()

	upgrader := NewUpgrader(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		hub.Serve(context.Background(), key, NewWSConn(ws, time.Second), initial)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, c *websocket.Conn) string {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, data, err := c.ReadMessage()
	require.NoError(t, err)

	return string(data)
}

func TestServeSnapshotBroadcastAndDisconnect(t *testing.T) {
	hub := newTestHub(time.Hour)
	key := MachineGroup(5)

	snapshot := models.Envelope{Type: models.EnvelopeSnapshot, MachineID: 5, Data: map[string]any{"battery": 13.1}}
	url := serveHub(t, hub, key, func(context.Context) any { return snapshot })

	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	assert.Equal(t, `{"type":"snapshot","machine_id":5,"data":{"battery":13.1}}`, readFrame(t, client))
	require.Eventually(t, func() bool { return hub.GroupSize(key) == 1 }, 2*time.Second, 5*time.Millisecond)

	env := models.EnvelopeFor(models.KindStatus, 5, map[string]any{"status": "Offline"})
	require.NoError(t, hub.Broadcast(context.Background(), key, env))
	assert.Equal(t, `{"type":"status","machine_id":5,"data":{"status":"Offline"}}`, readFrame(t, client))

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = client.Close()

	require.Eventually(t, func() bool { return hub.GroupSize(key) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestServeSnapshotIsReadAfterJoinAndSentFirst(t *testing.T) {
	hub := newTestHub(time.Hour)
	key := MachineGroup(5)

	joined := make(chan int, 1)
	broadcast := make(chan error, 1)

	url := serveHub(t, hub, key, func(ctx context.Context) any {
		joined <- hub.GroupSize(key)

		go func() {
			env := models.EnvelopeFor(models.KindTelemetry, 5, map[string]any{"water": 70})
			broadcast <- hub.Broadcast(ctx, key, env)
		}()

		return models.Envelope{Type: models.EnvelopeSnapshot, MachineID: 5, Data: map[string]any{"battery": 13.1}}
	})

	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	defer func() { _ = client.Close() }()

	assert.Equal(t, 1, <-joined, "snapshot is read with the subscriber already joined")
	assert.Equal(t, `{"type":"snapshot","machine_id":5,"data":{"battery":13.1}}`, readFrame(t, client))
	assert.Equal(t, `{"type":"telemetry","machine_id":5,"data":{"water":70}}`, readFrame(t, client))
	require.NoError(t, <-broadcast)
}

func TestServeSkipsEmptyInitialFrame(t *testing.T) {
	hub := newTestHub(20 * time.Millisecond)
	url := serveHub(t, hub, MachineGroup(9), func(context.Context) any { return nil })

	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	defer func() { _ = client.Close() }()

	assert.Equal(t, `{"type":"heartbeat"}`, readFrame(t, client))
}

func TestServeSendsHeartbeats(t *testing.T) {
	hub := newTestHub(20 * time.Millisecond)
	url := serveHub(t, hub, CompanyGroup(7), nil)

	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	defer func() { _ = client.Close() }()

	assert.Equal(t, `{"type":"heartbeat"}`, readFrame(t, client))
}

func TestSendAfterCloseFails(t *testing.T) {
	hub := newTestHub(time.Hour)
	key := MachineGroup(1)

	srvConns := make(chan *WSConn, 1)
	upgrader := NewUpgrader(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		conn := NewWSConn(ws, time.Second)
		srvConns <- conn

		hub.Serve(context.Background(), key, conn, nil)
	}))
	defer srv.Close()

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	defer func() { _ = client.Close() }()

	conn := <-srvConns
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")

	require.ErrorIs(t, conn.Send(context.Background(), []byte(`{}`)), ErrConnClosed)
	require.Eventually(t, func() bool { return hub.GroupSize(key) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestUpgraderOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no list allows all", origin: "https://evil.example", want: true},
		{name: "missing origin allowed", allowed: []string{"https://app.example"}, want: true},
		{name: "listed origin", allowed: []string{"https://app.example"}, origin: "https://app.example", want: true},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/realtime/1", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, NewUpgrader(tt.allowed).CheckOrigin(r))
		})
	}
}
