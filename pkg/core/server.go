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

// Package core assembles the solarpulse ingestion service: MQTT transport,
// identity and state caches, persistence and realtime fan-out.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/solarpulse/pkg/core/api"
	"github.com/carverauto/solarpulse/pkg/db"
	"github.com/carverauto/solarpulse/pkg/identity"
	"github.com/carverauto/solarpulse/pkg/ingest"
	"github.com/carverauto/solarpulse/pkg/kv"
	"github.com/carverauto/solarpulse/pkg/lifecycle"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/persistence"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/state"
	"github.com/carverauto/solarpulse/pkg/transport"
)

const (
	ServiceName     = "solarpulse-core"
	shutdownTimeout = 30 * time.Second
)

// Option overrides a collaborator NewServer would otherwise build from config.
type Option func(*options)

type options struct {
	store      db.Service
	dialer     transport.Dialer
	identityKV kv.KVStore
	stateKV    kv.KVStore
}

// WithStore supplies the durable store. The Server closes it on shutdown.
func WithStore(store db.Service) Option {
	return func(o *options) { o.store = store }
}

// WithDialer replaces the Paho dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithCaches supplies the identity and state caches.
func WithCaches(identityKV, stateKV kv.KVStore) Option {
	return func(o *options) {
		o.identityKV = identityKV
		o.stateKV = stateKV
	}
}

// Server owns every long-lived component of the service, including the
// subscriber registry and the process-local identity map.
type Server struct {
	config *Config
	logger logger.Logger

	metricsProvider *metrics.Provider
	recorder        *metrics.Recorder

	store      db.Service
	natsClient *kv.Client
	identityKV kv.KVStore
	stateKV    kv.KVStore

	resolver   *identity.Resolver
	states     *state.Engine
	hub        *realtime.Hub
	tasks      *lifecycle.Tasks
	stopTasks  context.CancelFunc
	buffer     *persistence.Buffer
	status     *persistence.StatusSync
	dispatcher *ingest.Dispatcher
	supervisor *transport.Supervisor
	api        *api.APIServer
}

// NewServer connects the caches and the store and wires the pipeline. It
// does not start any goroutines; call Run for that.
func NewServer(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{config: cfg, logger: log}

	if err := s.initMetrics(ctx); err != nil {
		return nil, err
	}

	if err := s.initCaches(ctx, &o); err != nil {
		s.abort(ctx)
		return nil, err
	}

	s.store = o.store
	if s.store == nil {
		store, err := db.New(ctx, &cfg.Database, log)
		if err != nil {
			s.abort(ctx)
			return nil, fmt.Errorf("open database: %w", err)
		}

		s.store = store
	}

	s.resolver = identity.NewResolver(s.store, s.identityKV, cfg.identityTTL(), log, s.recorder)
	s.states = state.NewEngine(s.stateKV, log)
	s.hub = realtime.NewHub(&cfg.Realtime, log, s.recorder)

	taskCtx, stopTasks := context.WithCancel(context.WithoutCancel(ctx))
	s.tasks = lifecycle.NewTasks(taskCtx, log)
	s.stopTasks = stopTasks

	s.buffer = persistence.NewBuffer(s.store, &cfg.Buffer, log, s.recorder)
	s.status = persistence.NewStatusSync(s.store, s.tasks, cfg.Buffer.StatusTimeout.Std(), log, s.recorder)

	s.dispatcher = ingest.NewDispatcher(ingest.Pipeline{
		Resolver:  s.resolver,
		States:    s.states,
		Hub:       s.hub,
		Telemetry: s.buffer,
		Status:    s.status,
		Tasks:     s.tasks,
	}, log, s.recorder)

	dialer := o.dialer
	if dialer == nil {
		dialer = transport.NewPahoDialer(&cfg.MQTT, log)
	}

	s.supervisor = transport.NewSupervisor(&cfg.MQTT, dialer, s.dispatcher.HandleMessage, log, s.recorder)

	s.api = api.NewAPIServer(cfg.Realtime, cfg.CORS, log,
		api.WithSubscribers(s.hub),
		api.WithStateReader(s.states),
		api.WithStatusReader(s.store),
		api.WithCommander(s.supervisor),
		api.WithMetricsHandler(s.metricsProvider.Handler()),
	)

	if err := s.registerGauges(); err != nil {
		log.Warn().Err(err).Msg("Failed to register gauges")
	}

	return s, nil
}

func (s *Server) initMetrics(ctx context.Context) error {
	otelCfg := logger.DefaultOTelConfig()
	if s.config.Logging != nil {
		otelCfg = s.config.Logging.OTel
	}

	provider, err := metrics.NewProvider(ctx, &s.config.Metrics, &otelCfg, ServiceName)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	s.metricsProvider = provider
	s.recorder = metrics.NewRecorder(provider.MeterProvider())

	return nil
}

// initCaches opens the two NATS KV buckets, or in-process stores when no
// NATS URL is configured.
func (s *Server) initCaches(ctx context.Context, o *options) error {
	if o.identityKV != nil && o.stateKV != nil {
		s.identityKV, s.stateKV = o.identityKV, o.stateKV
		return nil
	}

	ttl := s.config.identityTTL()

	if s.config.KV.NATSURL == "" {
		s.logger.Warn().Msg("kv.nats_url not set, using in-process caches")

		s.identityKV = kv.NewMemoryStore(ttl)
		s.stateKV = kv.NewMemoryStore(0)

		return nil
	}

	client, err := kv.Connect(&s.config.KV, s.logger)
	if err != nil {
		return err
	}

	s.natsClient = client

	identityKV, err := client.Bucket(ctx, s.config.KV.IdentityBucket, ttl)
	if err != nil {
		return err
	}

	stateKV, err := client.Bucket(ctx, s.config.KV.StateBucket, 0)
	if err != nil {
		return err
	}

	s.identityKV, s.stateKV = identityKV, stateKV

	return nil
}

func (s *Server) registerGauges() error {
	return errors.Join(
		s.recorder.Gauge("solarpulse_buffer_pending", "Telemetry records waiting for the next flush",
			func() int64 { return int64(s.buffer.Len()) }),
		s.recorder.Gauge("solarpulse_subscribers", "Live realtime subscribers",
			func() int64 { return int64(s.hub.Stats().Subscribers) }),
		s.recorder.Gauge("solarpulse_background_tasks", "Background tasks in flight",
			func() int64 { return s.tasks.Stats().Running }),
		s.recorder.Gauge("solarpulse_known_serials", "Serials held in the process-local identity map",
			func() int64 { return int64(s.resolver.Len()) }),
	)
}

// Run starts the MQTT supervisor, the flush loop and the HTTP API, and
// blocks until ctx is cancelled or the API fails to serve. On the way out
// the buffer gets a final flush after ingestion has stopped, in-flight
// status writes are awaited and every connection is closed.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("listen_addr", s.config.ListenAddr).
		Str("broker", s.config.MQTT.Broker).
		Str("database", s.config.Database.Driver).
		Msg("Starting solarpulse core")

	bufferCtx, stopBuffer := context.WithCancel(context.WithoutCancel(ctx))
	bufferDone := make(chan error, 1)

	go func() { bufferDone <- s.buffer.Run(bufferCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.supervisor.Run(gctx) })
	g.Go(func() error { return s.api.Start(gctx, s.config.ListenAddr) })

	runErr := g.Wait()

	stopBuffer()

	if err := <-bufferDone; err != nil {
		s.logger.Warn().Err(err).Msg("Flush loop ended with error")
	}

	s.shutdown()

	return runErr
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.tasks.Wait(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Background tasks still running at shutdown")
	}

	s.stopTasks()

	stats := s.tasks.Stats()
	s.logger.Info().
		Int64("tasks_started", stats.Started).
		Int64("tasks_failed", stats.Failed).
		Int64("tasks_panicked", stats.Panicked).
		Msg("Background tasks drained")

	s.closeAll()

	if err := s.metricsProvider.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to shut down metrics provider")
	}

	s.logger.Info().Msg("solarpulse core stopped")
}

func (s *Server) closeAll() {
	var errs []error

	if s.store != nil {
		errs = append(errs, s.store.Close())
	}

	if s.identityKV != nil {
		errs = append(errs, s.identityKV.Close())
	}

	if s.stateKV != nil {
		errs = append(errs, s.stateKV.Close())
	}

	if s.natsClient != nil {
		errs = append(errs, s.natsClient.Close())
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing connections")
	}
}

// abort releases whatever NewServer opened before failing.
func (s *Server) abort(ctx context.Context) {
	s.closeAll()
	_ = s.metricsProvider.Shutdown(ctx)
}

// Dispatcher returns the message handler fed by the MQTT supervisor.
func (s *Server) Dispatcher() *ingest.Dispatcher { return s.dispatcher }

// Hub returns the realtime subscriber registry.
func (s *Server) Hub() *realtime.Hub { return s.hub }
