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

package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/db"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/transport"
)

// brokerSession stands in for a live MQTT session; inject plays a message
// through the subscription callback.
type brokerSession struct {
	mu      sync.Mutex
	deliver func(topic string, payload []byte)
	lost    chan error
}

func (b *brokerSession) Subscribe(_ context.Context, _ []string, _ byte, fn func(string, []byte)) error {
	b.mu.Lock()
	b.deliver = fn
	b.mu.Unlock()

	return nil
}

func (*brokerSession) Publish(context.Context, string, byte, []byte) error { return nil }

func (b *brokerSession) Lost() <-chan error { return b.lost }

func (*brokerSession) Close() {}

func (b *brokerSession) inject(topic, payload string) {
	b.mu.Lock()
	fn := b.deliver
	b.mu.Unlock()

	fn(topic, []byte(payload))
}

type brokerDialer struct {
	sessions chan *brokerSession
}

func (d *brokerDialer) Dial(context.Context) (transport.Session, error) {
	s := &brokerSession{lost: make(chan error, 1)}
	d.sessions <- s

	return s, nil
}

type frameConn struct {
	id string

	mu     sync.Mutex
	frames []string
}

func (c *frameConn) ID() string { return c.id }

func (c *frameConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, string(frame))
	c.mu.Unlock()

	return nil
}

func (*frameConn) Close() error { return nil }

func (c *frameConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.frames...)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MQTT.Broker = "tcp://broker.invalid:1883"
	cfg.Database = models.DatabaseConfig{Driver: db.DriverSQLite}
	cfg.Buffer.FlushInterval = models.Duration(20 * time.Millisecond)
	cfg.Metrics.Exporter = "none"

	return cfg
}

func TestServerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.NewTestLogger()

	store, err := db.NewGormStore(filepath.Join(t.TempDir(), "solarpulse.db"), log)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	machineID, err := store.CreateMachine(ctx, "SN-42", 7, "north field pump")
	require.NoError(t, err)

	dialer := &brokerDialer{sessions: make(chan *brokerSession, 1)}

	srv, err := NewServer(ctx, testConfig(), log, WithStore(store), WithDialer(dialer))
	require.NoError(t, err)

	machineSub := &frameConn{id: "machine-sub"}
	companySub := &frameConn{id: "company-sub"}
	srv.Hub().Join(realtime.MachineGroup(machineID), machineSub)
	srv.Hub().Join(realtime.CompanyGroup(7), companySub)

	done := make(chan error, 1)

	go func() { done <- srv.Run(ctx) }()

	var session *brokerSession

	select {
	case session = <-dialer.sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never dialed")
	}

	require.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()

		return session.deliver != nil
	}, 2*time.Second, 5*time.Millisecond)

	session.inject("company/7/machine/SN-99/telemetry", `{"battery":13.1,"extra":{"temp":41.0}}`)
	session.inject("company/7/machine/SN-42/telemetry", `{"battery":13.1}`)
	session.inject("company/7/machine/SN-42/telemetry", `{"battery":13.1,"water":70}`)
	session.inject("company/7/machine/SN-42/status", `{"status":"Offline"}`)
	session.inject("company/7/machine", `{"battery":1}`)

	wantFrames := []string{
		`{"type":"telemetry","machine_id":1,"data":{"battery":13.1}}`,
		`{"type":"telemetry","machine_id":1,"data":{"water":70}}`,
		`{"type":"status","machine_id":1,"data":{"status":"Offline"}}`,
	}

	require.Equal(t, int64(1), machineID)
	require.Eventually(t, func() bool {
		return len(machineSub.received()) == len(wantFrames) && len(companySub.received()) == len(wantFrames)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, wantFrames, machineSub.received())
	assert.Equal(t, wantFrames, companySub.received())

	require.Eventually(t, func() bool {
		n, err := store.CountTelemetry(ctx, machineID)
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		online, err := store.MachineOnline(ctx, machineID)
		status, found, serr := store.GetMachineStatus(ctx, machineID)

		return err == nil && serr == nil && found && !online && status.Status == "Offline"
	}, 2*time.Second, 10*time.Millisecond)

	session.inject("company/7/machine/SN-42/status", `{"status":"Running"}`)

	require.Eventually(t, func() bool {
		online, err := store.MachineOnline(ctx, machineID)
		return err == nil && online
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServerRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "oracle"

	_, err := NewServer(context.Background(), cfg, logger.NewTestLogger(), WithDialer(&brokerDialer{}))
	require.ErrorIs(t, err, db.ErrUnsupportedDriver)
}
