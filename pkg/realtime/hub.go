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

// Package realtime fans machine updates out to live WebSocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultMaxConcurrentSend = 64
)

// Scope selects whether a group follows one machine or a whole company.
type Scope string

const (
	ScopeMachine Scope = "machine"
	ScopeCompany Scope = "company"
)

// GroupKey names a subscriber group.
type GroupKey struct {
	Scope Scope
	ID    int64
}

func MachineGroup(machineID int64) GroupKey { return GroupKey{Scope: ScopeMachine, ID: machineID} }

func CompanyGroup(companyID int64) GroupKey { return GroupKey{Scope: ScopeCompany, ID: companyID} }

func (k GroupKey) String() string {
	return string(k.Scope) + ":" + strconv.FormatInt(k.ID, 10)
}

// Conn is one live subscriber connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Stats summarizes the registry.
type Stats struct {
	Groups      int `json:"groups"`
	Subscribers int `json:"subscribers"`
}

// Hub is the registry of subscriber groups. Join, Leave and Broadcast are
// the only operations that change membership.
type Hub struct {
	heartbeat time.Duration
	sendLimit int
	logger    logger.Logger
	metrics   *metrics.Recorder

	heartbeatFrame []byte

	mu     sync.RWMutex
	groups map[GroupKey]map[string]Conn
}

// NewHub returns an empty Hub. A nil cfg uses defaults.
func NewHub(cfg *models.RealtimeConfig, log logger.Logger, rec *metrics.Recorder) *Hub {
	if cfg == nil {
		cfg = &models.RealtimeConfig{}
	}

	limit := cfg.MaxConcurrentSend
	if limit <= 0 {
		limit = DefaultMaxConcurrentSend
	}

	frame, _ := json.Marshal(models.HeartbeatEnvelope())

	return &Hub{
		heartbeat:      cfg.HeartbeatInterval.OrDefault(DefaultHeartbeatInterval),
		sendLimit:      limit,
		logger:         log,
		metrics:        rec,
		heartbeatFrame: frame,
		groups:         make(map[GroupKey]map[string]Conn),
	}
}

// Join adds conn to the group, creating the group on first use.
func (h *Hub) Join(key GroupKey, conn Conn) {
	h.mu.Lock()

	members, ok := h.groups[key]
	if !ok {
		members = make(map[string]Conn)
		h.groups[key] = members
	}

	members[conn.ID()] = conn
	size := len(members)

	h.mu.Unlock()

	h.logger.Debug().
		Str("group", key.String()).
		Str("conn_id", conn.ID()).
		Int("members", size).
		Msg("Subscriber joined")
}

// Leave removes conn from the group and deletes the group once it is empty.
// It reports whether conn was a member.
func (h *Hub) Leave(key GroupKey, conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[key]
	if !ok {
		return false
	}

	if _, ok := members[conn.ID()]; !ok {
		return false
	}

	delete(members, conn.ID())

	if len(members) == 0 {
		delete(h.groups, key)
	}

	return true
}

// Broadcast serializes msg once and sends it to every member of the group
// concurrently. Members whose send fails are removed and closed. An empty
// or unknown group is a no-op. Only a serialization failure is returned.
func (h *Hub) Broadcast(ctx context.Context, key GroupKey, msg any) error {
	members := h.members(key)
	if len(members) == 0 {
		return nil
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast for %s: %w", key, err)
	}

	var (
		failedMu sync.Mutex
		failed   []Conn
	)

	var g errgroup.Group
	g.SetLimit(h.sendLimit)

	for _, conn := range members {
		g.Go(func() error {
			if err := conn.Send(ctx, frame); err != nil {
				h.logger.Debug().
					Err(err).
					Str("group", key.String()).
					Str("conn_id", conn.ID()).
					Msg("Send failed, evicting subscriber")

				failedMu.Lock()
				failed = append(failed, conn)
				failedMu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	for _, conn := range failed {
		h.Leave(key, conn)
		_ = conn.Close()
	}

	h.metrics.Broadcast(ctx, string(key.Scope))
	h.metrics.Evicted(ctx, len(failed))

	return nil
}

// Send delivers msg to a single connection.
func (*Hub) Send(ctx context.Context, conn Conn, msg any) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return conn.Send(ctx, frame)
}

// Heartbeat sends a heartbeat frame to conn every interval until ctx is
// done. Send failures are ignored; the next broadcast or the connection's
// own close handles cleanup.
func (h *Hub) Heartbeat(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.Send(ctx, h.heartbeatFrame)
		}
	}
}

// GroupSize returns the number of members in a group.
func (h *Hub) GroupSize(key GroupKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.groups[key])
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Groups: len(h.groups)}
	for _, members := range h.groups {
		s.Subscribers += len(members)
	}

	return s
}

func (h *Hub) members(key GroupKey) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.groups[key]
	out := make([]Conn, 0, len(group))

	for _, c := range group {
		out = append(out, c)
	}

	return out
}
