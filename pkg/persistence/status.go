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

package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/solarpulse/pkg/lifecycle"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
)

const DefaultStatusTimeout = 10 * time.Second

// StatusStore persists the live status row and the online flag.
type StatusStore interface {
	UpsertMachineStatus(ctx context.Context, update *models.StatusUpdate) error
	SetMachineOnline(ctx context.Context, machineID int64, online bool) error
}

// Spawner runs detached background work.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// StatusSync writes status reports without holding up message processing.
// Writes for one machine are applied in the order they were submitted.
type StatusSync struct {
	store   StatusStore
	tasks   Spawner
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	order   *lifecycle.Sequencer
}

// NewStatusSync returns a StatusSync that runs its writes on tasks. A zero
// timeout selects DefaultStatusTimeout.
func NewStatusSync(store StatusStore, tasks Spawner, timeout time.Duration, log logger.Logger, rec *metrics.Recorder) *StatusSync {
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}

	return &StatusSync{
		store:   store,
		tasks:   tasks,
		timeout: timeout,
		logger:  log,
		metrics: rec,
		now:     time.Now,
		order:   lifecycle.NewSequencer(),
	}
}

// Apply schedules the status write for machineID and returns at once. The
// write runs on the task group's context, not the caller's.
func (s *StatusSync) Apply(_ context.Context, machineID int64, payload map[string]any) {
	update := models.NewStatusUpdate(machineID, payload, s.now())
	turn := s.order.Enter(machineID)

	s.tasks.Go("status-sync", func(ctx context.Context) error {
		defer turn.Done()

		if err := turn.Wait(ctx); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		return s.sync(ctx, update)
	})
}

// Sync upserts the status row for machineID and then sets its online flag,
// after any writes already queued for the machine.
func (s *StatusSync) Sync(ctx context.Context, machineID int64, payload map[string]any) error {
	update := models.NewStatusUpdate(machineID, payload, s.now())

	turn := s.order.Enter(machineID)
	defer turn.Done()

	if err := turn.Wait(ctx); err != nil {
		return err
	}

	return s.sync(ctx, update)
}

func (s *StatusSync) sync(ctx context.Context, update *models.StatusUpdate) (err error) {
	defer func() { s.metrics.StatusSync(ctx, err) }()

	if err = s.store.UpsertMachineStatus(ctx, update); err != nil {
		return fmt.Errorf("status sync: %w", err)
	}

	online := update.Online()

	if err = s.store.SetMachineOnline(ctx, update.MachineID, online); err != nil {
		return fmt.Errorf("status sync: %w", err)
	}

	s.logger.Debug().
		Int64("machine_id", update.MachineID).
		Str("status", update.Label()).
		Bool("online", online).
		Msg("Machine status synchronized")

	return nil
}

