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

// Package api provides the HTTP and WebSocket surface of solarpulse-core.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	srHttp "github.com/carverauto/solarpulse/pkg/http"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/state"
	"github.com/carverauto/solarpulse/pkg/transport"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	maxCommandBodyBytes = 64 << 10
)

// Subscribers is the registry side the API needs.
type Subscribers interface {
	Serve(ctx context.Context, key realtime.GroupKey, sess realtime.Session, initial realtime.InitialFrame)
	Stats() realtime.Stats
}

// StateReader returns the cached state of a machine.
type StateReader interface {
	Snapshot(ctx context.Context, machineID int64) (state.State, bool, error)
}

// StatusReader returns the persisted live status of a machine.
type StatusReader interface {
	GetMachineStatus(ctx context.Context, machineID int64) (*models.MachineStatus, bool, error)
}

// Commander publishes machine commands.
type Commander interface {
	Publish(ctx context.Context, tenant, serial string, payload []byte) error
	Connected() bool
}

// APIServer routes realtime subscriptions, live state and status reads, and
// commands.
type APIServer struct {
	router   *mux.Router
	upgrader *websocket.Upgrader
	realtime models.RealtimeConfig
	cors     models.CORSConfig

	hub            Subscribers
	states         StateReader
	statuses       StatusReader
	commander      Commander
	metricsHandler http.Handler
	logger         logger.Logger
}

// NewAPIServer creates the API server. Options supply the collaborators.
func NewAPIServer(rt models.RealtimeConfig, cors models.CORSConfig, log logger.Logger, options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		router:   mux.NewRouter(),
		upgrader: realtime.NewUpgrader(rt.AllowedOrigins),
		realtime: rt,
		cors:     cors,
		logger:   log,
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

func WithSubscribers(h Subscribers) func(*APIServer) {
	return func(s *APIServer) { s.hub = h }
}

func WithStateReader(r StateReader) func(*APIServer) {
	return func(s *APIServer) { s.states = r }
}

func WithStatusReader(r StatusReader) func(*APIServer) {
	return func(s *APIServer) { s.statuses = r }
}

func WithCommander(c Commander) func(*APIServer) {
	return func(s *APIServer) { s.commander = c }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) func(*APIServer) {
	return func(s *APIServer) { s.metricsHandler = h }
}

func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return srHttp.CommonMiddleware(next, s.cors, s.logger)
	})

	s.router.HandleFunc("/realtime/health", s.getHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/realtime/company/{company_id:[0-9]+}", s.subscribeCompany).Methods(http.MethodGet)
	s.router.HandleFunc("/realtime/{machine_id:[0-9]+}", s.subscribeMachine).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/machines/{machine_id:[0-9]+}/live", s.getLiveState).Methods(http.MethodGet)
	apiRouter.HandleFunc("/machines/{machine_id:[0-9]+}/status", s.getMachineStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/companies/{company_id}/machines/{serial}/command", s.postCommand).
		Methods(http.MethodPost, http.MethodOptions)

	if s.metricsHandler != nil {
		s.router.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}
}

// Handler exposes the router, mainly for tests.
func (s *APIServer) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled. WebSocket handlers inherit
// ctx, so cancellation also ends live subscriptions.
func (s *APIServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: defaultReadTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultReadTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Groups        int    `json:"groups"`
	Subscribers   int    `json:"subscribers"`
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.commander != nil {
		resp.MQTTConnected = s.commander.Connected()
	}

	if s.hub != nil {
		stats := s.hub.Stats()
		resp.Groups = stats.Groups
		resp.Subscribers = stats.Subscribers
	}

	if !resp.MQTTConnected {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) subscribeMachine(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r, "machine_id")
	if !ok {
		return
	}

	var initial realtime.InitialFrame

	if s.realtime.SnapshotEnabled() && s.states != nil {
		initial = func(ctx context.Context) any {
			return s.snapshotFrame(ctx, machineID)
		}
	}

	s.subscribe(w, r, realtime.MachineGroup(machineID), initial)
}

// snapshotFrame reads the cached state once the subscriber has joined, so no
// delta falls between the snapshot and the live stream.
func (s *APIServer) snapshotFrame(ctx context.Context, machineID int64) any {
	snap, found, err := s.states.Snapshot(ctx, machineID)

	switch {
	case err != nil:
		s.logger.Warn().Err(err).Int64("machine_id", machineID).Msg("Snapshot unavailable for new subscriber")
	case found:
		return models.Envelope{Type: models.EnvelopeSnapshot, MachineID: machineID, Data: snap}
	}

	return nil
}

func (s *APIServer) subscribeCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "company_id")
	if !ok {
		return
	}

	s.subscribe(w, r, realtime.CompanyGroup(companyID), nil)
}

// subscribe upgrades the request and blocks until the subscriber leaves.
// Upgrade failures are logged; the upgrader has already answered the client.
func (s *APIServer) subscribe(w http.ResponseWriter, r *http.Request, key realtime.GroupKey, initial realtime.InitialFrame) {
	if s.hub == nil {
		writeError(w, "realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("group", key.String()).Msg("WebSocket upgrade failed")
		return
	}

	conn := realtime.NewWSConn(ws, s.realtime.WriteTimeout.OrDefault(realtime.DefaultWriteTimeout))

	s.logger.Debug().
		Str("group", key.String()).
		Str("conn_id", conn.ID()).
		Str("remote", r.RemoteAddr).
		Msg("Subscriber connected")

	s.hub.Serve(r.Context(), key, conn, initial)
}

type liveStateResponse struct {
	MachineID int64       `json:"machine_id"`
	State     state.State `json:"state"`
}

func (s *APIServer) getLiveState(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r, "machine_id")
	if !ok {
		return
	}

	if s.states == nil {
		writeError(w, "state cache unavailable", http.StatusServiceUnavailable)
		return
	}

	snap, found, err := s.states.Snapshot(r.Context(), machineID)
	if err != nil {
		s.logger.Error().Err(err).Int64("machine_id", machineID).Msg("Failed to read machine state")
		writeError(w, "failed to read machine state", http.StatusInternalServerError)

		return
	}

	if !found {
		writeError(w, "no state for machine", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, liveStateResponse{MachineID: machineID, State: snap})
}

func (s *APIServer) getMachineStatus(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r, "machine_id")
	if !ok {
		return
	}

	if s.statuses == nil {
		writeError(w, "status store unavailable", http.StatusServiceUnavailable)
		return
	}

	status, found, err := s.statuses.GetMachineStatus(r.Context(), machineID)
	if err != nil {
		s.logger.Error().Err(err).Int64("machine_id", machineID).Msg("Failed to read machine status")
		writeError(w, "failed to read machine status", http.StatusInternalServerError)

		return
	}

	if !found {
		writeError(w, "no status for machine", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type commandResponse struct {
	Status string `json:"status"`
	Serial string `json:"serial"`
}

func (s *APIServer) postCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	companyID, serial := vars["company_id"], vars["serial"]

	if s.commander == nil {
		writeError(w, "command publishing unavailable", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBodyBytes))
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var command map[string]any
	if err := json.Unmarshal(body, &command); err != nil || command == nil {
		writeError(w, "command body must be a JSON object", http.StatusBadRequest)
		return
	}

	err = s.commander.Publish(r.Context(), companyID, serial, body)

	switch {
	case errors.Is(err, transport.ErrNotConnected):
		writeError(w, "mqtt broker not connected", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("serial", serial).Msg("Failed to publish command")
		writeError(w, "failed to publish command", http.StatusBadGateway)

		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{Status: "published", Serial: serial})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}

	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{Message: message, Status: statusCode})
}
