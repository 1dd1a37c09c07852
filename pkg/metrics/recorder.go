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

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/carverauto/solarpulse"

	metricMessages        = "solarpulse_messages"
	metricIdentityLookups = "solarpulse_identity_lookups"
	metricIdentityLatency = "solarpulse_identity_lookup_duration"
	metricFlushes         = "solarpulse_buffer_flushes"
	metricFlushedRows     = "solarpulse_buffer_rows"
	metricFlushLatency    = "solarpulse_buffer_flush_duration"
	metricDropped         = "solarpulse_buffer_dropped"
	metricBroadcasts      = "solarpulse_broadcasts"
	metricEvictions       = "solarpulse_subscriber_evictions"
	metricReconnects      = "solarpulse_mqtt_connects"
	metricStatusSyncs     = "solarpulse_status_syncs"
)

// Outcome attribute values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeDropped  = "dropped"
	OutcomeUnknown  = "unknown_machine"
	OutcomeNoChange = "no_change"
)

// Recorder holds the pipeline instruments. A nil *Recorder records nothing.
type Recorder struct {
	meter metric.Meter

	messages        metric.Int64Counter
	identityLookups metric.Int64Counter
	identityLatency metric.Float64Histogram
	flushes         metric.Int64Counter
	flushedRows     metric.Int64Counter
	flushLatency    metric.Float64Histogram
	dropped         metric.Int64Counter
	broadcasts      metric.Int64Counter
	evictions       metric.Int64Counter
	reconnects      metric.Int64Counter
	statusSyncs     metric.Int64Counter
}

// NewRecorder creates the pipeline instruments on mp. Instrument creation
// errors are routed to otel.Handle and leave a no-op instrument behind.
func NewRecorder(mp metric.MeterProvider) *Recorder {
	meter := mp.Meter(meterName)
	r := &Recorder{meter: meter}

	r.messages = counter(meter, metricMessages, "MQTT messages processed by kind and outcome")
	r.identityLookups = counter(meter, metricIdentityLookups, "Serial to machine id resolutions by source")
	r.identityLatency = histogram(meter, metricIdentityLatency, "Latency of serial to machine id resolution")
	r.flushes = counter(meter, metricFlushes, "Telemetry buffer flushes by outcome")
	r.flushedRows = counter(meter, metricFlushedRows, "Telemetry rows handed to the store by outcome")
	r.flushLatency = histogram(meter, metricFlushLatency, "Latency of telemetry batch inserts")
	r.dropped = counter(meter, metricDropped, "Telemetry records rejected because the buffer was full")
	r.broadcasts = counter(meter, metricBroadcasts, "Envelopes fanned out to a subscriber group")
	r.evictions = counter(meter, metricEvictions, "Subscribers removed after a failed send")
	r.reconnects = counter(meter, metricReconnects, "MQTT connection attempts by outcome")
	r.statusSyncs = counter(meter, metricStatusSyncs, "Status synchronizations by outcome")

	return r
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
	}

	return c
}

func histogram(meter metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}

	return h
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}

	return OutcomeOK
}

// Message counts one processed MQTT message.
func (r *Recorder) Message(ctx context.Context, kind, outcome string) {
	if r == nil || r.messages == nil {
		return
	}

	r.messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// IdentityLookup records where a serial was resolved and how long it took.
func (r *Recorder) IdentityLookup(ctx context.Context, source string, found bool, d time.Duration) {
	if r == nil || r.identityLookups == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("resolved_via", source),
		attribute.Bool("found", found),
	)

	r.identityLookups.Add(ctx, 1, attrs)

	if r.identityLatency != nil {
		r.identityLatency.Record(ctx, d.Seconds(), attrs)
	}
}

// BufferFlush records one batch insert attempt.
func (r *Recorder) BufferFlush(ctx context.Context, rows int, d time.Duration, err error) {
	if r == nil || r.flushes == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcomeOf(err)))

	r.flushes.Add(ctx, 1, attrs)

	if r.flushedRows != nil {
		r.flushedRows.Add(ctx, int64(rows), attrs)
	}

	if r.flushLatency != nil {
		r.flushLatency.Record(ctx, d.Seconds(), attrs)
	}
}

// BufferDropped counts records rejected at enqueue time.
func (r *Recorder) BufferDropped(ctx context.Context, n int) {
	if r == nil || r.dropped == nil || n == 0 {
		return
	}

	r.dropped.Add(ctx, int64(n))
}

// Broadcast counts one fan-out to a group.
func (r *Recorder) Broadcast(ctx context.Context, scope string) {
	if r == nil || r.broadcasts == nil {
		return
	}

	r.broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

// Evicted counts subscribers dropped after failed sends.
func (r *Recorder) Evicted(ctx context.Context, n int) {
	if r == nil || r.evictions == nil || n == 0 {
		return
	}

	r.evictions.Add(ctx, int64(n))
}

// ConnectAttempt counts one MQTT connect attempt.
func (r *Recorder) ConnectAttempt(ctx context.Context, err error) {
	if r == nil || r.reconnects == nil {
		return
	}

	r.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeOf(err))))
}

// StatusSync counts one status synchronization.
func (r *Recorder) StatusSync(ctx context.Context, err error) {
	if r == nil || r.statusSyncs == nil {
		return
	}

	r.statusSyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeOf(err))))
}

// Gauge registers an asynchronous gauge sampled from fn at collection time.
func (r *Recorder) Gauge(name, desc string, fn func() int64) error {
	if r == nil {
		return nil
	}

	_, err := r.meter.Int64ObservableGauge(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}),
	)

	return err
}
