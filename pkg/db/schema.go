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

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS machines (
    id          BIGSERIAL PRIMARY KEY,
    serial_no   TEXT NOT NULL UNIQUE,
    company_id  BIGINT,
    name        TEXT,
    is_online   BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE TABLE IF NOT EXISTS telemetry (
    id              BIGSERIAL PRIMARY KEY,
    machine_id      BIGINT NOT NULL REFERENCES machines(id) ON DELETE CASCADE,
    battery_level   DOUBLE PRECISION,
    solar_voltage   DOUBLE PRECISION,
    solar_current   DOUBLE PRECISION,
    water_level     DOUBLE PRECISION,
    additional_data JSONB,
    ts              TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_machine_ts ON telemetry (machine_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS machine_status (
    machine_id   BIGINT PRIMARY KEY REFERENCES machines(id) ON DELETE CASCADE,
    status       TEXT NOT NULL DEFAULT 'Online',
    energy_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    water_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
    area_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}
