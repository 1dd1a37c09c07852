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

package lifecycle

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/carverauto/solarpulse/pkg/logger"
)

// TaskStats counts background task outcomes since the group was created.
type TaskStats struct {
	Started  int64 `json:"started"`
	Running  int64 `json:"running"`
	Failed   int64 `json:"failed"`
	Panicked int64 `json:"panicked"`
}

// Tasks runs detached background work. Every task receives the group's
// context; a returned error or a panic is logged and counted, never
// propagated to the caller that spawned it.
type Tasks struct {
	ctx    context.Context
	logger logger.Logger
	wg     sync.WaitGroup

	started  atomic.Int64
	running  atomic.Int64
	failed   atomic.Int64
	panicked atomic.Int64
}

// NewTasks returns a task group whose tasks observe ctx.
func NewTasks(ctx context.Context, log logger.Logger) *Tasks {
	return &Tasks{ctx: ctx, logger: log}
}

// Go starts fn in its own goroutine.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	t.started.Add(1)
	t.running.Add(1)

	go func() {
		defer t.wg.Done()
		defer t.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				t.panicked.Add(1)
				t.logger.Error().
					Str("task", name).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("Background task panicked")
			}
		}()

		if err := fn(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.failed.Add(1)
			t.logger.Warn().Err(err).Str("task", name).Msg("Background task failed")
		}
	}()
}

// Wait blocks until every spawned task has returned or ctx is done.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the task counters.
func (t *Tasks) Stats() TaskStats {
	return TaskStats{
		Started:  t.started.Load(),
		Running:  t.running.Load(),
		Failed:   t.failed.Load(),
		Panicked: t.panicked.Load(),
	}
}
