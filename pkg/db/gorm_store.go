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
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

const telemetryInsertChunk = 500

type machineRow struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SerialNo  string `gorm:"column:serial_no;uniqueIndex;not null"`
	CompanyID *int64 `gorm:"column:company_id"`
	Name      string `gorm:"column:name"`
	IsOnline  bool   `gorm:"column:is_online;not null;default:false"`
}

func (machineRow) TableName() string { return "machines" }

type telemetryRow struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	MachineID      int64          `gorm:"column:machine_id;index:idx_telemetry_machine_ts,priority:1;not null"`
	BatteryLevel   *float64       `gorm:"column:battery_level"`
	SolarVoltage   *float64       `gorm:"column:solar_voltage"`
	SolarCurrent   *float64       `gorm:"column:solar_current"`
	WaterLevel     *float64       `gorm:"column:water_level"`
	AdditionalData datatypes.JSON `gorm:"column:additional_data"`
	Timestamp      time.Time      `gorm:"column:ts;index:idx_telemetry_machine_ts,priority:2;not null"`
}

func (telemetryRow) TableName() string { return "telemetry" }

type statusRow struct {
	MachineID   int64     `gorm:"column:machine_id;primaryKey;autoIncrement:false"`
	Status      string    `gorm:"column:status;not null"`
	EnergyValue float64   `gorm:"column:energy_value;not null"`
	WaterValue  float64   `gorm:"column:water_value;not null"`
	AreaValue   float64   `gorm:"column:area_value;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (statusRow) TableName() string { return "machine_status" }

// GormStore implements Service on an embedded SQLite file through GORM.
// It backs single-node and development deployments.
type GormStore struct {
	orm    *gorm.DB
	logger logger.Logger
}

// NewGormStore opens (or creates) the SQLite database at path.
func NewGormStore(path string, log logger.Logger) (*GormStore, error) {
	orm, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("path", path).Msg("Opened SQLite store")

	return &GormStore{orm: orm, logger: log}, nil
}

// Migrate ensures the schema for all tables exists.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.orm.WithContext(ctx).AutoMigrate(&machineRow{}, &telemetryRow{}, &statusRow{}); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}

	return nil
}

func (s *GormStore) LookupMachineBySerial(ctx context.Context, serial string) (int64, bool, error) {
	var row machineRow

	res := s.orm.WithContext(ctx).Where("serial_no = ?", serial).Limit(1).Find(&row)
	if res.Error != nil {
		return 0, false, fmt.Errorf("lookup machine %q: %w", serial, res.Error)
	}

	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	return row.ID, true, nil
}

func (s *GormStore) InsertTelemetryBatch(ctx context.Context, records []*models.TelemetryRecord) error {
	rows := make([]*telemetryRow, 0, len(records))

	for _, r := range records {
		if r == nil {
			continue
		}

		rows = append(rows, &telemetryRow{
			MachineID:      r.MachineID,
			BatteryLevel:   r.BatteryLevel,
			SolarVoltage:   r.SolarVoltage,
			SolarCurrent:   r.SolarCurrent,
			WaterLevel:     r.WaterLevel,
			AdditionalData: datatypes.JSON(r.AdditionalData),
			Timestamp:      r.Timestamp,
		})
	}

	if len(rows) == 0 {
		return nil
	}

	if err := s.orm.WithContext(ctx).CreateInBatches(rows, telemetryInsertChunk).Error; err != nil {
		return fmt.Errorf("insert telemetry batch: %w", err)
	}

	return nil
}

func (s *GormStore) UpsertMachineStatus(ctx context.Context, u *models.StatusUpdate) error {
	row := &statusRow{
		MachineID: u.MachineID,
		Status:    u.Label(),
		UpdatedAt: u.Timestamp,
	}

	// Only fields present in the update overwrite an existing row.
	updates := []string{"updated_at"}

	if u.Status != nil {
		updates = append(updates, "status")
	}

	if u.EnergyValue != nil {
		row.EnergyValue = *u.EnergyValue
		updates = append(updates, "energy_value")
	}

	if u.WaterValue != nil {
		row.WaterValue = *u.WaterValue
		updates = append(updates, "water_value")
	}

	if u.AreaValue != nil {
		row.AreaValue = *u.AreaValue
		updates = append(updates, "area_value")
	}

	err := s.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "machine_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert status for machine %d: %w", u.MachineID, err)
	}

	return nil
}

func (s *GormStore) SetMachineOnline(ctx context.Context, machineID int64, online bool) error {
	err := s.orm.WithContext(ctx).Model(&machineRow{}).
		Where("id = ?", machineID).
		Update("is_online", online).Error
	if err != nil {
		return fmt.Errorf("set online flag for machine %d: %w", machineID, err)
	}

	return nil
}

func (s *GormStore) GetMachineStatus(ctx context.Context, machineID int64) (*models.MachineStatus, bool, error) {
	var row statusRow

	res := s.orm.WithContext(ctx).Where("machine_id = ?", machineID).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("get status for machine %d: %w", machineID, res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	return &models.MachineStatus{
		MachineID:   row.MachineID,
		Status:      row.Status,
		EnergyValue: row.EnergyValue,
		WaterValue:  row.WaterValue,
		AreaValue:   row.AreaValue,
		Timestamp:   row.UpdatedAt,
	}, true, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

var _ Service = (*GormStore)(nil)
