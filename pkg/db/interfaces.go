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

//go:generate mockgen -destination=mock_db.go -package=db github.com/carverauto/solarpulse/pkg/db Service

// Package db is the durable store for machines, telemetry history and live status.
package db

import (
	"context"

	"github.com/carverauto/solarpulse/pkg/models"
)

// Service is the relational store used by the ingestion pipeline. Machine
// rows are created by the registration API; this package only reads them
// and flips their online flag.
type Service interface {
	// LookupMachineBySerial returns the machine id for a serial. found is
	// false for unknown serials.
	LookupMachineBySerial(ctx context.Context, serial string) (id int64, found bool, err error)

	// InsertTelemetryBatch writes all records in one round trip.
	InsertTelemetryBatch(ctx context.Context, records []*models.TelemetryRecord) error

	// UpsertMachineStatus creates the status row or overwrites only the
	// fields present in the update.
	UpsertMachineStatus(ctx context.Context, update *models.StatusUpdate) error

	// SetMachineOnline sets the machine's online flag.
	SetMachineOnline(ctx context.Context, machineID int64, online bool) error

	// GetMachineStatus returns the live status row, if any.
	GetMachineStatus(ctx context.Context, machineID int64) (*models.MachineStatus, bool, error)

	Close() error
}
