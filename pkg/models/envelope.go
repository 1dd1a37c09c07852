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

package models

// EnvelopeType is the "type" field of a frame sent to realtime subscribers.
type EnvelopeType string

const (
	EnvelopeTelemetry EnvelopeType = "telemetry"
	EnvelopeStatus    EnvelopeType = "status"
	EnvelopeHeartbeat EnvelopeType = "heartbeat"
	EnvelopeSnapshot  EnvelopeType = "snapshot"
)

// Envelope is the JSON frame pushed to WebSocket subscribers.
type Envelope struct {
	Type      EnvelopeType   `json:"type"`
	MachineID int64          `json:"machine_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// HeartbeatEnvelope is the keep-alive frame, serialized as {"type":"heartbeat"}.
func HeartbeatEnvelope() Envelope {
	return Envelope{Type: EnvelopeHeartbeat}
}

// EnvelopeFor maps a message kind onto the frame type used for fan-out.
func EnvelopeFor(kind MessageKind, machineID int64, data map[string]any) Envelope {
	t := EnvelopeTelemetry
	if kind == KindStatus {
		t = EnvelopeStatus
	}

	return Envelope{Type: t, MachineID: machineID, Data: data}
}
