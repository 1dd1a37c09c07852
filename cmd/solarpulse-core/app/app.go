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

package app

import (
	"context"

	"github.com/carverauto/solarpulse/pkg/core"
	"github.com/carverauto/solarpulse/pkg/lifecycle"
	"github.com/carverauto/solarpulse/pkg/version"
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
	ListenAddr string
	LogLevel   string
}

// Run boots solarpulse-core and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := core.LoadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, core.ServiceName, cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down logger")
		}
	}()

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("config", opts.ConfigPath).
		Msg("solarpulse-core starting")

	server, err := core.NewServer(ctx, cfg, mainLogger)
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
