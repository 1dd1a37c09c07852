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

// Package identity maps machine serial numbers to internal machine ids.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/carverauto/solarpulse/pkg/kv"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
)

const (
	keyNamespace = "serial"

	DefaultCacheTTL = time.Hour
)

// Resolution sources, recorded as the resolved_via metric attribute.
const (
	SourceMemory = "memory"
	SourceCache  = "kv"
	SourceStore  = "db"
	SourceNone   = "none"
)

// Store is the durable source of truth for machine identities.
type Store interface {
	LookupMachineBySerial(ctx context.Context, serial string) (int64, bool, error)
}

// Resolver resolves serials through process memory, then the shared KV
// cache, then the durable store. Each miss that a slower tier satisfies is
// written back to every faster tier. Unknown serials are never cached, so a
// machine registered later resolves on its next message.
type Resolver struct {
	store   Store
	cache   kv.KVStore
	ttl     time.Duration
	logger  logger.Logger
	metrics *metrics.Recorder

	mu    sync.RWMutex
	local map[string]int64
}

// NewResolver builds a Resolver. cache may be nil, in which case only the
// process-local tier fronts the store. A zero ttl selects DefaultCacheTTL.
func NewResolver(store Store, cache kv.KVStore, ttl time.Duration, log logger.Logger, rec *metrics.Recorder) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Resolver{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		logger:  log,
		metrics: rec,
		local:   make(map[string]int64),
	}
}

// Resolve returns the machine id for serial. found is false, with a nil
// error, when no machine with that serial is registered.
func (r *Resolver) Resolve(ctx context.Context, serial string) (int64, bool, error) {
	start := time.Now()

	if id, ok := r.fromMemory(serial); ok {
		r.metrics.IdentityLookup(ctx, SourceMemory, true, time.Since(start))
		return id, true, nil
	}

	key := kv.Key(keyNamespace, serial)

	if id, ok := r.fromCache(ctx, key, serial); ok {
		r.remember(serial, id)
		r.metrics.IdentityLookup(ctx, SourceCache, true, time.Since(start))

		return id, true, nil
	}

	id, found, err := r.store.LookupMachineBySerial(ctx, serial)
	if err != nil {
		return 0, false, fmt.Errorf("resolve serial %q: %w", serial, err)
	}

	if !found {
		r.metrics.IdentityLookup(ctx, SourceNone, false, time.Since(start))
		return 0, false, nil
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, []byte(strconv.FormatInt(id, 10)), r.ttl); err != nil {
			r.logger.Warn().Err(err).Str("serial", serial).Msg("Failed to write machine id to KV cache")
		}
	}

	r.remember(serial, id)
	r.metrics.IdentityLookup(ctx, SourceStore, true, time.Since(start))

	return id, true, nil
}

func (r *Resolver) fromMemory(serial string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.local[serial]

	return id, ok
}

func (r *Resolver) fromCache(ctx context.Context, key, serial string) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}

	raw, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("serial", serial).Msg("KV cache lookup failed, falling back to store")
		return 0, false
	}

	if !found {
		return 0, false
	}

	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		r.logger.Warn().Err(err).Str("serial", serial).Msg("Ignoring malformed machine id in KV cache")
		return 0, false
	}

	return id, true
}

func (r *Resolver) remember(serial string, id int64) {
	r.mu.Lock()
	r.local[serial] = id
	r.mu.Unlock()
}

// Len returns the number of serials held in process memory.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.local)
}
