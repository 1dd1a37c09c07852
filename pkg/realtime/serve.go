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

package realtime

import (
	"context"
	"time"
)

// Session is a subscriber connection that can also report when its peer
// goes away.
type Session interface {
	Conn
	ReadLoop() error
	Done() <-chan struct{}
}

// InitialFrame builds the first frame sent to a new subscriber. A nil
// result sends nothing.
type InitialFrame func(ctx context.Context) any

// Serve registers sess under key, sends the initial frame (when initial is
// non-nil and returns a frame), keeps the connection alive with heartbeats
// and blocks until the peer disconnects, the hub evicts it, or ctx ends.
// The session is deregistered and closed before Serve returns.
//
// initial runs after the join, and broadcasts reaching the session before
// the initial frame is written wait for it.
func (h *Hub) Serve(ctx context.Context, key GroupKey, sess Session, initial InitialFrame) {
	start := time.Now()

	gate := &primedConn{Conn: sess, ready: make(chan struct{})}

	h.Join(key, gate)

	defer func() {
		h.Leave(key, gate)
		_ = sess.Close()

		h.logger.Debug().
			Str("group", key.String()).
			Str("conn_id", sess.ID()).
			Dur("duration", time.Since(start)).
			Msg("Subscriber disconnected")
	}()

	err := h.prime(ctx, sess, initial)

	close(gate.ready)

	if err != nil {
		h.logger.Warn().Err(err).Str("conn_id", sess.ID()).Msg("Failed to send initial frame")
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.Heartbeat(hbCtx, sess)

	readErr := make(chan error, 1)

	go func() { readErr <- sess.ReadLoop() }()

	select {
	case <-ctx.Done():
	case <-sess.Done():
	case err := <-readErr:
		if err != nil {
			h.logger.Debug().Err(err).Str("conn_id", sess.ID()).Msg("Subscriber read ended")
		}
	}
}

func (h *Hub) prime(ctx context.Context, sess Session, initial InitialFrame) error {
	if initial == nil {
		return nil
	}

	msg := initial(ctx)
	if msg == nil {
		return nil
	}

	return h.Send(ctx, sess, msg)
}

// primedConn holds group sends until the initial frame has been written.
type primedConn struct {
	Conn
	ready chan struct{}
}

func (c *primedConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.Conn.Send(ctx, frame)
}
