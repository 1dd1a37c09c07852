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

package models

// TLSConfig points at PEM files used for client TLS. Relative paths are
// resolved against CertDir.
type TLSConfig struct {
	CertDir            string `json:"cert_dir,omitempty" yaml:"cert_dir,omitempty"`
	CertFile           string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile             string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	ServerName         string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	Broker         string     `json:"broker" yaml:"broker"`
	ClientID       string     `json:"client_id" yaml:"client_id"`
	Username       string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string     `json:"password,omitempty" yaml:"password,omitempty"`
	Topics         []string   `json:"topics" yaml:"topics"`
	QoS            byte       `json:"qos" yaml:"qos"`
	RetryInterval  Duration   `json:"retry_interval" yaml:"retry_interval"`
	ConnectTimeout Duration   `json:"connect_timeout" yaml:"connect_timeout"`
	KeepAlive      Duration   `json:"keep_alive" yaml:"keep_alive"`
	Realm          string     `json:"realm" yaml:"realm"`
	Entity         string     `json:"entity" yaml:"entity"`
	TLS            *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// KVConfig configures the shared cache. An empty NATSURL selects the
// in-process store.
type KVConfig struct {
	NATSURL        string     `json:"nats_url" yaml:"nats_url"`
	Domain         string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	IdentityBucket string     `json:"identity_bucket" yaml:"identity_bucket"`
	StateBucket    string     `json:"state_bucket" yaml:"state_bucket"`
	IdentityTTL    Duration   `json:"identity_ttl" yaml:"identity_ttl"`
	TLS            *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// DatabaseConfig selects and configures the durable store.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"`

	// postgres
	Host              string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port              int               `json:"port,omitempty" yaml:"port,omitempty"`
	Database          string            `json:"database,omitempty" yaml:"database,omitempty"`
	Username          string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password          string            `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode           string            `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
	ApplicationName   string            `json:"application_name,omitempty" yaml:"application_name,omitempty"`
	MaxConnections    int32             `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	MinConnections    int32             `json:"min_connections,omitempty" yaml:"min_connections,omitempty"`
	MaxConnLifetime   Duration          `json:"max_conn_lifetime,omitempty" yaml:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod Duration          `json:"health_check_period,omitempty" yaml:"health_check_period,omitempty"`
	StatementTimeout  Duration          `json:"statement_timeout,omitempty" yaml:"statement_timeout,omitempty"`
	RuntimeParams     map[string]string `json:"runtime_params,omitempty" yaml:"runtime_params,omitempty"`
	TLS               *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`

	// sqlite
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
}

// BufferConfig tunes the telemetry write buffer.
type BufferConfig struct {
	FlushInterval   Duration `json:"flush_interval" yaml:"flush_interval"`
	MaxPending      int      `json:"max_pending" yaml:"max_pending"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	StatusTimeout   Duration `json:"status_timeout" yaml:"status_timeout"`
}

// RealtimeConfig tunes the WebSocket fan-out.
type RealtimeConfig struct {
	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	WriteTimeout      Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxConcurrentSend int      `json:"max_concurrent_send" yaml:"max_concurrent_send"`
	SendSnapshot      *bool    `json:"send_snapshot,omitempty" yaml:"send_snapshot,omitempty"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// SnapshotEnabled defaults to true when unset.
func (c RealtimeConfig) SnapshotEnabled() bool {
	return c.SendSnapshot == nil || *c.SendSnapshot
}

// MetricsConfig selects the metrics exporter: "prometheus", "otlp" or "none".
type MetricsConfig struct {
	Exporter       string   `json:"exporter" yaml:"exporter"`
	ExportInterval Duration `json:"export_interval,omitempty" yaml:"export_interval,omitempty"`
}

// CORSConfig controls the Access-Control headers on the HTTP API. An empty
// AllowedOrigins list, or one containing "*", allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	AllowCredentials bool     `json:"allow_credentials,omitempty" yaml:"allow_credentials,omitempty"`
}
