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

// machine-sim publishes synthetic telemetry and status reports for a fleet
// of solar machines and prints any commands sent back to them.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/carverauto/solarpulse/pkg/lifecycle"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
	"github.com/carverauto/solarpulse/pkg/transport"
)

var errNoSerials = errors.New("at least one --serial is required")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		cfg      models.MQTTConfig
		sim      fleetConfig
		logLevel string
	)

	flags := pflag.NewFlagSet("machine-sim", pflag.ContinueOnError)
	flags.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flags.StringVar(&cfg.Username, "username", "", "MQTT username")
	flags.StringVar(&cfg.Password, "password", "", "MQTT password")
	flags.StringVar(&sim.Realm, "realm", transport.DefaultRealm, "First topic segment")
	flags.StringVar(&sim.Entity, "entity", transport.DefaultEntity, "Third topic segment")
	flags.StringVar(&sim.Company, "company", "1", "Company id used as the tenant segment")
	flags.StringSliceVar(&sim.Serials, "serial", []string{"SIM-0001"}, "Machine serials to simulate (repeatable)")
	flags.DurationVar(&sim.Interval, "interval", 5*time.Second, "Telemetry period per machine")
	flags.IntVar(&sim.StatusEvery, "status-every", 6, "Publish a status report every N telemetry ticks")
	flags.StringVar(&logLevel, "log-level", "info", "Log level")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	if len(sim.Serials) == 0 {
		return errNoSerials
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := logger.DefaultConfig()
	logCfg.Level = logLevel

	simLogger, err := lifecycle.CreateComponentLogger(ctx, "machine-sim", logCfg)
	if err != nil {
		return err
	}

	defer func() { _ = lifecycle.ShutdownLogger() }()

	cfg.ClientID = transport.ClientID("", "machine-sim")

	session, err := transport.NewPahoDialer(&cfg, simLogger).Dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	machines := newFleet(sim, session, simLogger)

	if err := machines.watchCommands(ctx); err != nil {
		return err
	}

	simLogger.Info().
		Str("broker", cfg.Broker).
		Strs("serials", sim.Serials).
		Dur("interval", sim.Interval).
		Msg("Simulating machines")

	return machines.Run(ctx)
}
