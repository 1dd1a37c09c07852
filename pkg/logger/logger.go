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

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string     `json:"level" yaml:"level"`
	Debug      bool       `json:"debug" yaml:"debug"`
	Output     string     `json:"output" yaml:"output"`
	TimeFormat string     `json:"time_format" yaml:"time_format"`
	OTel       OTelConfig `json:"otel" yaml:"otel"`
}

// Zero implements Logger on top of a zerolog.Logger value.
type Zero struct {
	logger zerolog.Logger
}

// New builds a Logger from config. When OTel export is enabled the JSON
// stream is tee'd into the OTLP log pipeline.
func New(ctx context.Context, config *Config) (*Zero, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level, err := parseLevel(config)
	if err != nil {
		return nil, err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	if config.OTel.Enabled && config.OTel.Endpoint != "" {
		otelWriter, err := NewOTELWriter(ctx, config.OTel)
		if err != nil {
			return nil, err
		}

		output = io.MultiWriter(output, otelWriter)
	}

	return &Zero{
		logger: zerolog.New(output).Level(level).With().Timestamp().Logger(),
	}, nil
}

func parseLevel(config *Config) (zerolog.Level, error) {
	if config.Debug {
		return zerolog.DebugLevel, nil
	}

	if config.Level == "" {
		return zerolog.InfoLevel, nil
	}

	return zerolog.ParseLevel(config.Level)
}

// Component returns a copy of z tagged with a component field.
func (z *Zero) Component(component string) *Zero {
	return &Zero{logger: z.logger.With().Str("component", component).Logger()}
}

func (z *Zero) Trace() *zerolog.Event { return z.logger.Trace() }
func (z *Zero) Debug() *zerolog.Event { return z.logger.Debug() }
func (z *Zero) Info() *zerolog.Event  { return z.logger.Info() }
func (z *Zero) Warn() *zerolog.Event  { return z.logger.Warn() }
func (z *Zero) Error() *zerolog.Event { return z.logger.Error() }
func (z *Zero) Fatal() *zerolog.Event { return z.logger.Fatal() }
func (z *Zero) Panic() *zerolog.Event { return z.logger.Panic() }
func (z *Zero) With() zerolog.Context { return z.logger.With() }

func (z *Zero) WithComponent(component string) zerolog.Logger {
	return z.logger.With().Str("component", component).Logger()
}

func (z *Zero) WithFields(fields map[string]interface{}) zerolog.Logger {
	return z.logger.With().Fields(fields).Logger()
}

func (z *Zero) SetLevel(level zerolog.Level) {
	z.logger = z.logger.Level(level)
}

func (z *Zero) SetDebug(debug bool) {
	if debug {
		z.SetLevel(zerolog.DebugLevel)
		return
	}

	z.SetLevel(zerolog.InfoLevel)
}
