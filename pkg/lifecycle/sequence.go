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
	"sync"
)

// Sequencer orders background work that shares a key: each Turn waits for
// the turn entered before it under the same key. Keys with no outstanding
// turn are forgotten.
type Sequencer struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

func NewSequencer() *Sequencer {
	return &Sequencer{tails: make(map[int64]chan struct{})}
}

// Turn is one slot in a key's sequence. Done must be called exactly once,
// whether or not Wait succeeded.
type Turn struct {
	prev <-chan struct{}
	own  chan struct{}
	done func()
}

// Enter appends a turn for key. Call it in submission order, before the
// work is spawned.
func (s *Sequencer) Enter(key int64) *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Turn{own: make(chan struct{})}

	if tail, ok := s.tails[key]; ok {
		t.prev = tail
	}

	s.tails[key] = t.own

	t.done = func() {
		close(t.own)

		s.mu.Lock()
		if s.tails[key] == t.own {
			delete(s.tails, key)
		}
		s.mu.Unlock()
	}

	return t
}

// Done releases the next turn. A turn that gave up waiting releases it only
// once its own predecessor is done, so later turns never overtake earlier
// ones.
func (t *Turn) Done() {
	if t.prev == nil {
		t.done()
		return
	}

	select {
	case <-t.prev:
		t.done()
	default:
		go func() {
			<-t.prev
			t.done()
		}()
	}
}

// Wait blocks until the previous turn is done or ctx ends.
func (t *Turn) Wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}

	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of keys with outstanding turns.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tails)
}
