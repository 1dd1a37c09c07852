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

// Package lifecycle holds process-level helpers: logger bootstrap and the
// supervised background task group.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/carverauto/solarpulse/pkg/logger"
)

// CreateComponentLogger builds the process logger from config and tags it
// with component. A nil config falls back to logger.DefaultConfig.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	if config.OTel.ServiceName == "" {
		config.OTel.ServiceName = component
	}

	base, err := logger.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if _, err := logger.InitializeTracing(ctx, &config.OTel); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return base.Component(component), nil
}

// ShutdownLogger flushes the OTLP log and trace pipelines.
func ShutdownLogger() error {
	return logger.Shutdown()
}
