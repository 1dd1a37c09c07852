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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/db"
	"github.com/carverauto/solarpulse/pkg/metrics"
)

const coreYAML = `
listen_addr: ":9000"
mqtt:
  broker: tcp://mqtt.local:1883
  qos: 2
kv:
  nats_url: nats://nats.local:4222
  identity_ttl: 30m
database:
  driver: postgres
  host: db.local
  database: solar
  username: solar
buffer:
  flush_interval: 2s
realtime:
  heartbeat_interval: 10s
  allowed_origins: ["https://dash.local"]
cors:
  allowed_origins: ["https://dash.local"]
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfigFromYAML(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), writeConfig(t, "core.yaml", coreYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, "company", cfg.MQTT.Realm, "unset fields keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.MQTT.RetryInterval.Std())
	assert.Equal(t, 30*time.Minute, cfg.identityTTL())
	assert.Equal(t, "solarpulse-state", cfg.KV.StateBucket)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Buffer.FlushInterval.Std())
	assert.Equal(t, []string{"https://dash.local"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Realtime.SnapshotEnabled())
	require.NotNil(t, cfg.Logging)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	secret := writeConfig(t, "password", "s3cret\n")

	t.Setenv("SOLARPULSE_MQTT_BROKER", "ssl://mqtt.prod:8883")
	t.Setenv("SOLARPULSE_DATABASE_HOST", "db.prod")
	t.Setenv("SOLARPULSE_BUFFER_FLUSH_INTERVAL", "250ms")
	t.Setenv(PasswordFileEnv, secret)

	cfg, err := LoadConfig(context.Background(), writeConfig(t, "core.yaml", coreYAML))
	require.NoError(t, err)

	assert.Equal(t, "ssl://mqtt.prod:8883", cfg.MQTT.Broker)
	assert.Equal(t, "db.prod", cfg.Database.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.Buffer.FlushInterval.Std())
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("SOLARPULSE_MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("SOLARPULSE_DATABASE_DRIVER", "sqlite")
	t.Setenv("SOLARPULSE_DATABASE_PATH", filepath.Join(t.TempDir(), "solar.db"))

	cfg, err := LoadConfig(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, db.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(context.Background(), writeConfig(t, "core.yaml", "mqtt:\n  brokr: tcp://x:1883\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.MQTT.Broker = "tcp://mqtt.local:1883"
		cfg.Database.Host = "db.local"

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name: "missing broker and listen address",
			mutate: func(c *Config) {
				c.MQTT.Broker = ""
				c.ListenAddr = ""
			},
			wantErr: []error{errMQTTBrokerRequired, errListenAddrRequired},
		},
		{
			name:    "qos out of range",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: []error{errInvalidQoS},
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: []error{errDatabaseHost},
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Database.Driver = db.DriverSQLite },
			wantErr: []error{db.ErrSQLitePathMissing},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: []error{db.ErrUnsupportedDriver},
		},
		{
			name: "negative limits",
			mutate: func(c *Config) {
				c.Buffer.MaxPending = -1
				c.Realtime.MaxConcurrentSend = -1
			},
			wantErr: []error{errNegativeMaxPending, errNegativeConcurrency},
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Metrics.Exporter = metrics.ExporterOTLP },
			wantErr: []error{metrics.ErrOTLPEndpointRequired},
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Metrics.Exporter = "statsd" },
			wantErr: []error{metrics.ErrUnknownExporter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}

			for _, want := range tt.wantErr {
				require.ErrorIs(t, err, want)
			}
		})
	}
}
