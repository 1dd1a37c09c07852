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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/solarpulse/pkg/config"
	"github.com/carverauto/solarpulse/pkg/db"
	"github.com/carverauto/solarpulse/pkg/identity"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/persistence"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/transport"
)

const (
	EnvPrefix             = "SOLARPULSE_"
	PasswordFileEnv       = "CNPG_PASSWORD_FILE"
	defaultListenAddr     = ":8090"
	defaultIdentityBucket = "solarpulse-identity"
	defaultStateBucket    = "solarpulse-state"
	defaultPostgresPort   = 5432
)

var (
	errMQTTBrokerRequired  = errors.New("mqtt.broker is required")
	errListenAddrRequired  = errors.New("listen_addr is required")
	errInvalidQoS          = errors.New("mqtt.qos must be 0, 1 or 2")
	errDatabaseHost        = errors.New("database.host is required for the postgres driver")
	errNegativeMaxPending  = errors.New("buffer.max_pending must not be negative")
	errNegativeConcurrency = errors.New("realtime.max_concurrent_send must not be negative")
)

// Config is the solarpulse-core service configuration.
type Config struct {
	ListenAddr string                `json:"listen_addr" yaml:"listen_addr"`
	MQTT       models.MQTTConfig     `json:"mqtt" yaml:"mqtt"`
	KV         models.KVConfig       `json:"kv" yaml:"kv"`
	Database   models.DatabaseConfig `json:"database" yaml:"database"`
	Buffer     models.BufferConfig   `json:"buffer" yaml:"buffer"`
	Realtime   models.RealtimeConfig `json:"realtime" yaml:"realtime"`
	CORS       models.CORSConfig     `json:"cors" yaml:"cors"`
	Metrics    models.MetricsConfig  `json:"metrics" yaml:"metrics"`
	Logging    *logger.Config        `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// DefaultConfig returns a Config with every optional field populated.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: defaultListenAddr,
		MQTT: models.MQTTConfig{
			Realm:         transport.DefaultRealm,
			Entity:        transport.DefaultEntity,
			QoS:           1,
			RetryInterval: models.Duration(transport.DefaultRetryInterval),
		},
		KV: models.KVConfig{
			IdentityBucket: defaultIdentityBucket,
			StateBucket:    defaultStateBucket,
			IdentityTTL:    models.Duration(identity.DefaultCacheTTL),
		},
		Database: models.DatabaseConfig{
			Driver: db.DriverPostgres,
			Port:   defaultPostgresPort,
		},
		Buffer: models.BufferConfig{
			FlushInterval:   models.Duration(persistence.DefaultFlushInterval),
			ShutdownTimeout: models.Duration(persistence.DefaultShutdownTimeout),
			StatusTimeout:   models.Duration(persistence.DefaultStatusTimeout),
		},
		Realtime: models.RealtimeConfig{
			HeartbeatInterval: models.Duration(realtime.DefaultHeartbeatInterval),
			WriteTimeout:      models.Duration(realtime.DefaultWriteTimeout),
			MaxConcurrentSend: realtime.DefaultMaxConcurrentSend,
		},
		Metrics: models.MetricsConfig{Exporter: metrics.ExporterPrometheus},
		Logging: logger.DefaultConfig(),
	}
}

// LoadConfig layers path (optional) and SOLARPULSE_* environment variables
// over the defaults, reads the database password from CNPG_PASSWORD_FILE
// when set, and validates the result.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := config.Load(ctx, path, EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	password, found, err := config.ReadSecretFile(PasswordFileEnv)
	if err != nil {
		return nil, err
	}

	if found {
		cfg.Database.Password = password
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) normalize() {
	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	for _, tlsCfg := range []*models.TLSConfig{c.MQTT.TLS, c.KV.TLS, c.Database.TLS, c.Logging.OTel.TLS} {
		config.NormalizeTLSPaths(tlsCfg)
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errListenAddrRequired)
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, errMQTTBrokerRequired)
	}

	if c.MQTT.QoS > 2 {
		errs = append(errs, errInvalidQoS)
	}

	switch strings.ToLower(c.Database.Driver) {
	case "", db.DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, errDatabaseHost)
		}
	case db.DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, db.ErrSQLitePathMissing)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", db.ErrUnsupportedDriver, c.Database.Driver))
	}

	if c.Buffer.MaxPending < 0 {
		errs = append(errs, errNegativeMaxPending)
	}

	if c.Realtime.MaxConcurrentSend < 0 {
		errs = append(errs, errNegativeConcurrency)
	}

	switch strings.ToLower(c.Metrics.Exporter) {
	case "", metrics.ExporterPrometheus, metrics.ExporterNone:
	case metrics.ExporterOTLP:
		if c.Logging == nil || c.Logging.OTel.Endpoint == "" {
			errs = append(errs, metrics.ErrOTLPEndpointRequired)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", metrics.ErrUnknownExporter, c.Metrics.Exporter))
	}

	return errors.Join(errs...)
}

// identityTTL is the shared cache lifetime for serial lookups.
func (c *Config) identityTTL() time.Duration {
	return c.KV.IdentityTTL.OrDefault(identity.DefaultCacheTTL)
}
