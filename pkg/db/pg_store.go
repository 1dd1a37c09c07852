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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

// pgxConn is the subset of *pgxpool.Pool used by PGStore.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	lookupMachineSQL = `SELECT id FROM machines WHERE serial_no = $1`

	insertTelemetrySQL = `
INSERT INTO telemetry (
    machine_id, battery_level, solar_voltage, solar_current, water_level, additional_data, ts
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertStatusSQL = `
INSERT INTO machine_status AS ms (
    machine_id, status, energy_value, water_value, area_value, updated_at
) VALUES (
    $1,
    COALESCE($2::text, 'Online'),
    COALESCE($3::double precision, 0),
    COALESCE($4::double precision, 0),
    COALESCE($5::double precision, 0),
    $6
)
ON CONFLICT (machine_id) DO UPDATE SET
    status       = COALESCE($2::text, ms.status),
    energy_value = COALESCE($3::double precision, ms.energy_value),
    water_value  = COALESCE($4::double precision, ms.water_value),
    area_value   = COALESCE($5::double precision, ms.area_value),
    updated_at   = EXCLUDED.updated_at`

	setOnlineSQL = `UPDATE machines SET is_online = $2 WHERE id = $1`

	getStatusSQL = `
SELECT machine_id, status, energy_value, water_value, area_value, updated_at
FROM machine_status WHERE machine_id = $1`
)

// PGStore implements Service on Postgres through pgx.
type PGStore struct {
	conn   pgxConn
	close  func()
	logger logger.Logger
}

// NewPGStore wraps an open pool. closeFn may be nil.
func NewPGStore(conn pgxConn, closeFn func(), log logger.Logger) *PGStore {
	return &PGStore{conn: conn, close: closeFn, logger: log}
}

func (s *PGStore) LookupMachineBySerial(ctx context.Context, serial string) (int64, bool, error) {
	var id int64

	err := s.conn.QueryRow(ctx, lookupMachineSQL, serial).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("lookup machine %q: %w", serial, err)
	}

	return id, true, nil
}

func (s *PGStore) InsertTelemetryBatch(ctx context.Context, records []*models.TelemetryRecord) error {
	batch := &pgx.Batch{}

	for _, r := range records {
		if r == nil {
			continue
		}

		var extra any
		if len(r.AdditionalData) > 0 {
			extra = string(r.AdditionalData)
		}

		batch.Queue(insertTelemetrySQL,
			r.MachineID, r.BatteryLevel, r.SolarVoltage, r.SolarCurrent, r.WaterLevel, extra, r.Timestamp)
	}

	return sendBatchExecAll(ctx, batch, s.conn.SendBatch, "telemetry")
}

func (s *PGStore) UpsertMachineStatus(ctx context.Context, u *models.StatusUpdate) error {
	if _, err := s.conn.Exec(ctx, upsertStatusSQL,
		u.MachineID, u.Status, u.EnergyValue, u.WaterValue, u.AreaValue, u.Timestamp); err != nil {
		return fmt.Errorf("upsert status for machine %d: %w", u.MachineID, err)
	}

	return nil
}

func (s *PGStore) SetMachineOnline(ctx context.Context, machineID int64, online bool) error {
	if _, err := s.conn.Exec(ctx, setOnlineSQL, machineID, online); err != nil {
		return fmt.Errorf("set online flag for machine %d: %w", machineID, err)
	}

	return nil
}

func (s *PGStore) GetMachineStatus(ctx context.Context, machineID int64) (*models.MachineStatus, bool, error) {
	var st models.MachineStatus

	err := s.conn.QueryRow(ctx, getStatusSQL, machineID).Scan(
		&st.MachineID, &st.Status, &st.EnergyValue, &st.WaterValue, &st.AreaValue, &st.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("get status for machine %d: %w", machineID, err)
	}

	return &st, true, nil
}

// Migrate creates the tables this service writes to when they are missing.
func (s *PGStore) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}

	s.logger.Info().Int("statements", len(postgresSchema)).Msg("Postgres schema ensured")

	return nil
}

func (s *PGStore) Close() error {
	if s.close != nil {
		s.close()
	}

	return nil
}

var _ Service = (*PGStore)(nil)
