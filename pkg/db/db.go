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
	"strings"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrSQLitePathMissing = errors.New("sqlite driver requires database.path")
)

type migrator interface {
	Migrate(ctx context.Context) error
}

// New opens the store selected by cfg.Driver and applies the schema when
// cfg.AutoMigrate is set. An empty driver selects Postgres.
func New(ctx context.Context, cfg *models.DatabaseConfig, log logger.Logger) (Service, error) {
	var (
		store Service
		err   error
	)

	switch strings.ToLower(cfg.Driver) {
	case "", DriverPostgres:
		pool, perr := NewPGPool(ctx, cfg, log)
		if perr != nil {
			return nil, perr
		}

		store = NewPGStore(pool, pool.Close, log)
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, ErrSQLitePathMissing
		}

		store, err = NewGormStore(cfg.Path, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	if cfg.AutoMigrate {
		if m, ok := store.(migrator); ok {
			if err := m.Migrate(ctx); err != nil {
				_ = store.Close()

				return nil, err
			}
		}
	}

	return store, nil
}
