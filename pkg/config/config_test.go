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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/solarpulse/pkg/models"
)

type testConfig struct {
	Name     string                 `json:"name" yaml:"name"`
	Port     int                    `json:"port" yaml:"port"`
	Enabled  bool                   `json:"enabled" yaml:"enabled"`
	Interval models.Duration        `json:"interval" yaml:"interval"`
	Topics   []string               `json:"topics" yaml:"topics"`
	MQTT     models.MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Database *models.DatabaseConfig `json:"database,omitempty" yaml:"database,omitempty"`
	Realtime models.RealtimeConfig  `json:"realtime" yaml:"realtime"`
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestFileConfigLoaderFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "core.json",
			body: `{"name":"core","port":8090,"interval":"5s","topics":["a","b"],"mqtt":{"broker":"tcp://b:1883"}}`,
		},
		{
			name: "yaml",
			file: "core.yaml",
			body: "name: core\nport: 8090\ninterval: 5s\ntopics: [a, b]\nmqtt:\n  broker: tcp://b:1883\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg testConfig

			err := (&FileConfigLoader{}).Load(context.Background(), writeFile(t, tt.file, tt.body), &cfg)
			require.NoError(t, err)

			assert.Equal(t, "core", cfg.Name)
			assert.Equal(t, 8090, cfg.Port)
			assert.Equal(t, 5*time.Second, cfg.Interval.Std())
			assert.Equal(t, []string{"a", "b"}, cfg.Topics)
			assert.Equal(t, "tcp://b:1883", cfg.MQTT.Broker)
		})
	}
}

func TestFileConfigLoaderRejectsUnknown(t *testing.T) {
	var cfg testConfig

	err := (&FileConfigLoader{}).Load(context.Background(), writeFile(t, "c.json", `{"nmae":"typo"}`), &cfg)
	require.Error(t, err)

	err = (&FileConfigLoader{}).Load(context.Background(), writeFile(t, "c.toml", `name = "x"`), &cfg)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEnvConfigLoaderOverrides(t *testing.T) {
	t.Setenv("SP_NAME", "from-env")
	t.Setenv("SP_PORT", "9000")
	t.Setenv("SP_ENABLED", "true")
	t.Setenv("SP_INTERVAL", "250ms")
	t.Setenv("SP_TOPICS", "x, y ,")
	t.Setenv("SP_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("SP_REALTIME_SEND_SNAPSHOT", "false")

	cfg := testConfig{Name: "file", Port: 1}

	require.NoError(t, Load(context.Background(), "", "SP_", &cfg))

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval.Std())
	assert.Equal(t, []string{"x", "y"}, cfg.Topics)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.False(t, cfg.Realtime.SnapshotEnabled())
	assert.Nil(t, cfg.Database, "untouched optional sections stay nil")
}

func TestEnvConfigLoaderAllocatesTargetedPointer(t *testing.T) {
	t.Setenv("SP_DATABASE_HOST", "db.local")

	var cfg testConfig

	require.NoError(t, NewEnvConfigLoader("SP_").Load(context.Background(), "", &cfg))
	require.NotNil(t, cfg.Database)
	assert.Equal(t, "db.local", cfg.Database.Host)
}

func TestEnvConfigLoaderBadValue(t *testing.T) {
	t.Setenv("SP_PORT", "ninety")

	var cfg testConfig

	err := NewEnvConfigLoader("SP_").Load(context.Background(), "", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SP_PORT")

	require.ErrorIs(t, NewEnvConfigLoader("").Load(context.Background(), "", cfg), ErrDstMustBeNonNilPointer)
}

func TestNormalizeTLSPaths(t *testing.T) {
	cfg := &models.TLSConfig{
		CertDir:  "/etc/solarpulse/certs",
		CertFile: "client.pem",
		KeyFile:  "/abs/key.pem",
	}

	NormalizeTLSPaths(cfg)

	assert.Equal(t, "/etc/solarpulse/certs/client.pem", cfg.CertFile)
	assert.Equal(t, "/abs/key.pem", cfg.KeyFile)
	assert.Empty(t, cfg.CAFile)
}

func TestLoadTLS(t *testing.T) {
	tlsCfg, err := LoadTLS(nil)
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	_, err = LoadTLS(&models.TLSConfig{CertFile: "only-cert.pem"})
	require.ErrorIs(t, err, ErrIncompleteKeyPair)

	_, err = LoadTLS(&models.TLSConfig{CAFile: writeFile(t, "ca.pem", "not a pem")})
	require.ErrorIs(t, err, ErrCAParsingFailed)

	tlsCfg, err = LoadTLS(&models.TLSConfig{ServerName: "broker.local"})
	require.NoError(t, err)
	assert.Equal(t, "broker.local", tlsCfg.ServerName)
}

func TestReadSecretFile(t *testing.T) {
	_, found, err := ReadSecretFile("SP_UNSET_SECRET_FILE")
	require.NoError(t, err)
	assert.False(t, found)

	t.Setenv("SP_SECRET_FILE", writeFile(t, "pw", "  hunter2\n"))

	secret, found, err := ReadSecretFile("SP_SECRET_FILE")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hunter2", secret)

	t.Setenv("SP_SECRET_FILE", writeFile(t, "empty", "\n"))

	_, _, err = ReadSecretFile("SP_SECRET_FILE")
	require.ErrorIs(t, err, ErrSecretFileEmpty)
}
