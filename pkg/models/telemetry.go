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

// Package models holds the data types shared across the solarpulse pipeline.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MessageKind is the last segment of a machine topic.
type MessageKind string

const (
	KindTelemetry MessageKind = "telemetry"
	KindStatus    MessageKind = "status"
	KindCommand   MessageKind = "command"
)

// Payload keys extracted into typed telemetry and status columns.
const (
	FieldBattery      = "battery"
	FieldSolarVoltage = "solar_v"
	FieldSolarCurrent = "solar_a"
	FieldWater        = "water"
	FieldExtra        = "extra"
	FieldStatus       = "status"
	FieldEnergy       = "energy"
	FieldArea         = "area"
)

// DefaultStatusLabel is stored when a machine reports status without a label.
const DefaultStatusLabel = "Online"

// TelemetryRecord is one append-only telemetry sample for a machine.
type TelemetryRecord struct {
	MachineID      int64           `json:"machine_id"`
	BatteryLevel   *float64        `json:"battery_level,omitempty"`
	SolarVoltage   *float64        `json:"solar_voltage,omitempty"`
	SolarCurrent   *float64        `json:"solar_current,omitempty"`
	WaterLevel     *float64        `json:"water_level,omitempty"`
	AdditionalData json.RawMessage `json:"additional_data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewTelemetryRecord extracts the typed telemetry columns from a decoded payload.
// Keys that are missing or not numeric are left nil.
func NewTelemetryRecord(machineID int64, payload map[string]any, now time.Time) *TelemetryRecord {
	rec := &TelemetryRecord{
		MachineID:    machineID,
		BatteryLevel: FloatField(payload, FieldBattery),
		SolarVoltage: FloatField(payload, FieldSolarVoltage),
		SolarCurrent: FloatField(payload, FieldSolarCurrent),
		WaterLevel:   FloatField(payload, FieldWater),
		Timestamp:    now.UTC(),
	}

	if extra, ok := payload[FieldExtra]; ok && extra != nil {
		if raw, err := json.Marshal(extra); err == nil {
			rec.AdditionalData = raw
		}
	}

	return rec
}

// StatusUpdate carries the fields a status message reported. Nil pointers
// mean the field was absent and the stored value must be kept.
type StatusUpdate struct {
	MachineID   int64
	Status      *string
	EnergyValue *float64
	WaterValue  *float64
	AreaValue   *float64
	Timestamp   time.Time
}

// NewStatusUpdate builds a StatusUpdate from a decoded status payload.
func NewStatusUpdate(machineID int64, payload map[string]any, now time.Time) *StatusUpdate {
	u := &StatusUpdate{
		MachineID:   machineID,
		EnergyValue: FloatField(payload, FieldEnergy),
		WaterValue:  FloatField(payload, FieldWater),
		AreaValue:   FloatField(payload, FieldArea),
		Timestamp:   now.UTC(),
	}

	if s, ok := payload[FieldStatus].(string); ok {
		u.Status = &s
	}

	return u
}

// Label returns the reported status label, or DefaultStatusLabel when none was sent.
func (u *StatusUpdate) Label() string {
	if u.Status == nil {
		return DefaultStatusLabel
	}

	return *u.Status
}

// Online reports whether the label marks the machine as online.
func (u *StatusUpdate) Online() bool {
	return !strings.EqualFold(u.Label(), "offline")
}

// MachineStatus is the live status row kept per machine.
type MachineStatus struct {
	MachineID   int64     `json:"machine_id"`
	Status      string    `json:"status"`
	EnergyValue float64   `json:"energy_value"`
	WaterValue  float64   `json:"water_value"`
	AreaValue   float64   `json:"area_value"`
	Timestamp   time.Time `json:"timestamp"`
}

// FloatField returns payload[key] as a float64 when it holds a number or a
// numeric string.
func FloatField(payload map[string]any, key string) *float64 {
	v, ok := payload[key]
	if !ok {
		return nil
	}

	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}

		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}

		f = parsed
	default:
		return nil
	}

	return &f
}
