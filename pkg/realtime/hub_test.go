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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return errBrokenPipe
	}

	c.frames = append(c.frames, frame)

	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return nil
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, string(f))
	}

	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func newTestHub(interval time.Duration) *Hub {
	return NewHub(&models.RealtimeConfig{HeartbeatInterval: models.Duration(interval)}, logger.NewTestLogger(), nil)
}

func TestJoinLeaveDeletesEmptyGroups(t *testing.T) {
	hub := newTestHub(0)
	a, b := newFakeConn("a"), newFakeConn("b")
	key := MachineGroup(5)

	hub.Join(key, a)
	hub.Join(key, b)
	hub.Join(CompanyGroup(7), a)

	assert.Equal(t, 2, hub.GroupSize(key))
	assert.Equal(t, Stats{Groups: 2, Subscribers: 3}, hub.Stats())

	assert.True(t, hub.Leave(key, a))
	assert.False(t, hub.Leave(key, a), "second leave is a no-op")
	assert.True(t, hub.Leave(key, b))
	assert.False(t, hub.Leave(MachineGroup(99), b))

	assert.Equal(t, 0, hub.GroupSize(key))
	assert.Equal(t, Stats{Groups: 1, Subscribers: 1}, hub.Stats())
}

func TestBroadcastToEmptyGroupIsNoop(t *testing.T) {
	hub := newTestHub(0)

	require.NoError(t, hub.Broadcast(context.Background(), MachineGroup(1), models.HeartbeatEnvelope()))
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestBroadcastDeliversSameFrameToEveryMember(t *testing.T) {
	hub := newTestHub(0)
	key := CompanyGroup(3)

	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, c := range conns {
		hub.Join(key, c)
	}

	env := models.EnvelopeFor(models.KindTelemetry, 5, map[string]any{"water": 70})
	require.NoError(t, hub.Broadcast(context.Background(), key, env))

	for _, c := range conns {
		assert.Equal(t, []string{`{"type":"telemetry","machine_id":5,"data":{"water":70}}`}, c.received())
	}
}

func TestBroadcastEvictsFailedMembers(t *testing.T) {
	hub := newTestHub(0)
	key := MachineGroup(5)

	good, bad := newFakeConn("good"), newFakeConn("bad")
	bad.fail = true

	hub.Join(key, good)
	hub.Join(key, bad)

	require.NoError(t, hub.Broadcast(context.Background(), key, models.HeartbeatEnvelope()))

	assert.Equal(t, 1, hub.GroupSize(key))
	assert.True(t, bad.isClosed())
	assert.False(t, good.isClosed())

	require.NoError(t, hub.Broadcast(context.Background(), key, models.HeartbeatEnvelope()))
	assert.Len(t, good.received(), 2)
	assert.Empty(t, bad.received())
}

func TestBroadcastLastMemberFailingRemovesGroup(t *testing.T) {
	hub := newTestHub(0)
	key := MachineGroup(8)

	bad := newFakeConn("bad")
	bad.fail = true
	hub.Join(key, bad)

	require.NoError(t, hub.Broadcast(context.Background(), key, models.HeartbeatEnvelope()))
	assert.Equal(t, Stats{}, hub.Stats())
}

func TestBroadcastEncodeError(t *testing.T) {
	hub := newTestHub(0)
	key := MachineGroup(1)
	hub.Join(key, newFakeConn("a"))

	err := hub.Broadcast(context.Background(), key, map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Equal(t, 1, hub.GroupSize(key), "encode failure evicts nobody")
}

func TestHeartbeatIgnoresFailuresAndStopsOnCancel(t *testing.T) {
	hub := newTestHub(10 * time.Millisecond)
	conn := newFakeConn("hb")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		hub.Heartbeat(ctx, conn)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(conn.received()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"type":"heartbeat"}`, conn.received()[0])

	conn.mu.Lock()
	conn.fail = true
	conn.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}

	assert.False(t, conn.isClosed(), "heartbeat failures do not close the connection")
}
