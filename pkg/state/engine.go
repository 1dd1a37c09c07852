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

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/carverauto/solarpulse/pkg/kv"
	"github.com/carverauto/solarpulse/pkg/logger"
)

const keyNamespace = "state"

// Engine merges payloads into the cached machine state.
//
// The load, merge and write-back of one machine run under a per-machine
// lock, so concurrent messages for the same machine inside this process can
// no longer overwrite each other's fields. The cost is that merges for a
// single busy machine are serialized. Writers in other processes sharing
// the same bucket are not coordinated.
type Engine struct {
	store  kv.KVStore
	logger logger.Logger
	locks  keyedMutex
}

// NewEngine returns an Engine persisting state in store.
func NewEngine(store kv.KVStore, log logger.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: log,
		locks:  keyedMutex{locks: make(map[int64]*refLock)},
	}
}

func stateKey(machineID int64) string {
	return kv.Key(keyNamespace, strconv.FormatInt(machineID, 10))
}

// Merge folds payload into the stored state of machineID, writes the full
// state back and returns the delta. An empty delta means nothing changed.
func (e *Engine) Merge(ctx context.Context, machineID int64, payload map[string]any) (State, error) {
	unlock := e.locks.lock(machineID)
	defer unlock()

	current, _, err := e.load(ctx, machineID)
	if err != nil {
		return nil, err
	}

	delta := Diff(current, payload)

	current.Apply(payload)

	raw, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode state for machine %d: %w", machineID, err)
	}

	if err := e.store.Put(ctx, stateKey(machineID), raw, 0); err != nil {
		return nil, fmt.Errorf("write state for machine %d: %w", machineID, err)
	}

	return delta, nil
}

// Snapshot returns the stored state of machineID.
func (e *Engine) Snapshot(ctx context.Context, machineID int64) (State, bool, error) {
	return e.load(ctx, machineID)
}

func (e *Engine) load(ctx context.Context, machineID int64) (State, bool, error) {
	raw, found, err := e.store.Get(ctx, stateKey(machineID))
	if err != nil {
		return nil, false, fmt.Errorf("read state for machine %d: %w", machineID, err)
	}

	if !found {
		return State{}, false, nil
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		e.logger.Warn().Err(err).Int64("machine_id", machineID).Msg("Discarding unreadable cached state")

		return State{}, false, nil
	}

	return s, true, nil
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per machine id and forgets it once no
// goroutine holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()

	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}

	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--

		if l.refs == 0 {
			delete(k.locks, id)
		}

		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}
