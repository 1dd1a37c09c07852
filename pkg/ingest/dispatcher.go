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

// Package ingest turns machine MQTT messages into state updates, live
// broadcasts and persisted records.
package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/solarpulse/pkg/lifecycle"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/realtime"
	"github.com/carverauto/solarpulse/pkg/state"
)

const (
	tracerName = "github.com/carverauto/solarpulse/pkg/ingest"

	// realm/tenant/entity/serial/kind
	minTopicSegments = 5
	tenantSegment    = 1
	serialSegment    = 3
	kindSegment      = 4
)

type Resolver interface {
	Resolve(ctx context.Context, serial string) (int64, bool, error)
}

type Merger interface {
	Merge(ctx context.Context, machineID int64, payload map[string]any) (state.State, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, key realtime.GroupKey, msg any) error
}

type TelemetrySink interface {
	Enqueue(rec *models.TelemetryRecord)
}

type StatusApplier interface {
	Apply(ctx context.Context, machineID int64, payload map[string]any)
}

type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Pipeline groups the collaborators a Dispatcher drives. With Tasks set,
// broadcasts run in the background, still in message order per machine;
// without it they run inline.
type Pipeline struct {
	Resolver  Resolver
	States    Merger
	Hub       Broadcaster
	Telemetry TelemetrySink
	Status    StatusApplier
	Tasks     Spawner
}

// Dispatcher processes one MQTT message at a time: parse, resolve, merge,
// broadcast, then hand off to persistence.
type Dispatcher struct {
	pipeline Pipeline
	logger   logger.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	now      func() time.Time
	order    *lifecycle.Sequencer
}

func NewDispatcher(p Pipeline, log logger.Logger, rec *metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		pipeline: p,
		logger:   log,
		metrics:  rec,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
		order:    lifecycle.NewSequencer(),
	}
}

type topicParts struct {
	tenant string
	serial string
	kind   models.MessageKind
}

// parseTopic splits realm/tenant/entity/serial/kind. Extra trailing
// segments are ignored.
func parseTopic(topic string) (topicParts, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicSegments {
		return topicParts{}, false
	}

	return topicParts{
		tenant: parts[tenantSegment],
		serial: parts[serialSegment],
		kind:   models.MessageKind(parts[kindSegment]),
	}, true
}

// HandleMessage is the transport's MessageHandler. Nothing it encounters is
// returned to the caller: bad input is dropped, storage failures are logged.
func (d *Dispatcher) HandleMessage(ctx context.Context, topic string, payload []byte) {
	tp, ok := parseTopic(topic)
	if !ok {
		d.metrics.Message(ctx, "malformed", metrics.OutcomeDropped)
		return
	}

	if tp.kind != models.KindTelemetry && tp.kind != models.KindStatus {
		d.metrics.Message(ctx, string(tp.kind), metrics.OutcomeDropped)
		return
	}

	ctx, span := d.tracer.Start(ctx, "HandleMessage")
	defer span.End()

	span.SetAttributes(
		attribute.String("mqtt.topic", topic),
		attribute.String("machine.serial", tp.serial),
		attribute.String("message.kind", string(tp.kind)),
	)

	outcome := d.process(ctx, span, tp, payload)
	span.SetAttributes(attribute.String("outcome", outcome))
	d.metrics.Message(ctx, string(tp.kind), outcome)
}

func (d *Dispatcher) process(ctx context.Context, span trace.Span, tp topicParts, payload []byte) string {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		d.logger.Warn().
			Err(err).
			Str("serial", tp.serial).
			Str("kind", string(tp.kind)).
			Msg("Payload is not a JSON object, dropping message")

		return metrics.OutcomeDropped
	}

	machineID, found, err := d.pipeline.Resolver.Resolve(ctx, tp.serial)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		d.logger.Error().Err(err).Str("serial", tp.serial).Msg("Machine lookup failed, dropping message")

		return metrics.OutcomeError
	}

	if !found {
		d.logger.Warn().Str("serial", tp.serial).Msg("Unknown machine serial, dropping message")
		return metrics.OutcomeUnknown
	}

	span.SetAttributes(attribute.Int64("machine.id", machineID))

	delta, err := d.pipeline.States.Merge(ctx, machineID, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		d.logger.Error().Err(err).Int64("machine_id", machineID).Msg("State merge failed, dropping message")

		return metrics.OutcomeError
	}

	outcome := metrics.OutcomeNoChange
	if len(delta) > 0 {
		d.broadcast(ctx, tp, machineID, delta)
		outcome = metrics.OutcomeOK
	}

	switch tp.kind {
	case models.KindTelemetry:
		d.pipeline.Telemetry.Enqueue(models.NewTelemetryRecord(machineID, body, d.now()))
	case models.KindStatus:
		d.pipeline.Status.Apply(ctx, machineID, body)
	}

	return outcome
}

func (d *Dispatcher) broadcast(ctx context.Context, tp topicParts, machineID int64, delta state.State) {
	env := models.EnvelopeFor(tp.kind, machineID, delta)

	keys := []realtime.GroupKey{realtime.MachineGroup(machineID)}
	if companyID, err := strconv.ParseInt(tp.tenant, 10, 64); err == nil {
		keys = append(keys, realtime.CompanyGroup(companyID))
	}

	if d.pipeline.Tasks == nil {
		d.fanOut(ctx, keys, env)
		return
	}

	turn := d.order.Enter(machineID)

	d.pipeline.Tasks.Go("broadcast", func(ctx context.Context) error {
		defer turn.Done()

		if err := turn.Wait(ctx); err != nil {
			return err
		}

		d.fanOut(ctx, keys, env)

		return nil
	})
}

func (d *Dispatcher) fanOut(ctx context.Context, keys []realtime.GroupKey, env models.Envelope) {
	for _, key := range keys {
		if err := d.pipeline.Hub.Broadcast(ctx, key, env); err != nil {
			d.logger.Warn().Err(err).Str("group", key.String()).Msg("Broadcast failed")
		}
	}
}
