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

// Package persistence moves telemetry and status off the ingest hot path
// into the durable store.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	DefaultFlushInterval   = 5 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// TelemetryWriter stores a batch of telemetry records in one round trip.
type TelemetryWriter interface {
	InsertTelemetryBatch(ctx context.Context, records []*models.TelemetryRecord) error
}

// Buffer accumulates telemetry records and writes them in periodic batches.
// The mutex only guards appending and swapping the pending slice; the
// insert itself runs outside it so Enqueue never waits on the store.
type Buffer struct {
	writer          TelemetryWriter
	interval        time.Duration
	shutdownTimeout time.Duration
	maxPending      int
	logger          logger.Logger
	metrics         *metrics.Recorder

	bufferMutex sync.Mutex
	pending     []*models.TelemetryRecord

	wake chan struct{}
}

// NewBuffer returns a Buffer flushing into writer. A nil cfg uses defaults.
func NewBuffer(writer TelemetryWriter, cfg *models.BufferConfig, log logger.Logger, rec *metrics.Recorder) *Buffer {
	if cfg == nil {
		cfg = &models.BufferConfig{}
	}

	return &Buffer{
		writer:          writer,
		interval:        cfg.FlushInterval.OrDefault(DefaultFlushInterval),
		shutdownTimeout: cfg.ShutdownTimeout.OrDefault(DefaultShutdownTimeout),
		maxPending:      cfg.MaxPending,
		logger:          log,
		metrics:         rec,
		wake:            make(chan struct{}, 1),
	}
}

// Enqueue appends rec and returns immediately. Reaching max_pending wakes
// the flusher ahead of the next tick.
func (b *Buffer) Enqueue(rec *models.TelemetryRecord) {
	if rec == nil {
		return
	}

	b.bufferMutex.Lock()
	b.pending = append(b.pending, rec)
	full := b.maxPending > 0 && len(b.pending) >= b.maxPending
	b.bufferMutex.Unlock()

	if full {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of records waiting for the next flush.
func (b *Buffer) Len() int {
	b.bufferMutex.Lock()
	defer b.bufferMutex.Unlock()

	return len(b.pending)
}

// Flush claims every pending record and writes them as one batch. A failed
// batch is logged and dropped; its records are never re-queued, so no
// record can be written twice.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.bufferMutex.Lock()
	batch := b.pending
	b.pending = nil
	b.bufferMutex.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	err := b.writer.InsertTelemetryBatch(ctx, batch)
	elapsed := time.Since(start)

	b.metrics.BufferFlush(ctx, len(batch), elapsed, err)

	if err != nil {
		b.logger.Error().
			Err(err).
			Int("records", len(batch)).
			Msg("Telemetry batch insert failed, discarding batch")

		return 0, err
	}

	b.logger.Debug().
		Int("records", len(batch)).
		Dur("elapsed", elapsed).
		Msg("Flushed telemetry batch")

	return len(batch), nil
}

// Run flushes every interval until ctx is cancelled, then makes one final
// best-effort flush bounded by the shutdown timeout.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.shutdownTimeout)
			n, err := b.Flush(drainCtx)
			cancel()

			if err == nil && n > 0 {
				b.logger.Info().Int("records", n).Msg("Flushed pending telemetry on shutdown")
			}

			return nil
		case <-ticker.C:
			_, _ = b.Flush(ctx)
		case <-b.wake:
			_, _ = b.Flush(ctx)
		}
	}
}
