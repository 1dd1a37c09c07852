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

package db

import (
	"context"
	"fmt"
)

// Fixture helpers for SQLite stores. Machine registration belongs to the
// provisioning side, so the ingestion path never calls these; tests and
// local development databases use them to seed machines and inspect what
// the pipeline wrote.

// CreateMachine registers a machine and returns its id.
func (s *GormStore) CreateMachine(ctx context.Context, serial string, companyID int64, name string) (int64, error) {
	row := &machineRow{SerialNo: serial, CompanyID: &companyID, Name: name}

	if err := s.orm.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("create machine %q: %w", serial, err)
	}

	return row.ID, nil
}

// MachineOnline reports the online flag of a machine.
func (s *GormStore) MachineOnline(ctx context.Context, machineID int64) (bool, error) {
	var row machineRow

	if err := s.orm.WithContext(ctx).First(&row, machineID).Error; err != nil {
		return false, fmt.Errorf("machine %d: %w", machineID, err)
	}

	return row.IsOnline, nil
}

// CountTelemetry returns the number of stored telemetry rows for a machine.
func (s *GormStore) CountTelemetry(ctx context.Context, machineID int64) (int64, error) {
	var n int64

	err := s.orm.WithContext(ctx).Model(&telemetryRow{}).Where("machine_id = ?", machineID).Count(&n).Error

	return n, err
}
