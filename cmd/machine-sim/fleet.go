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

package main

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	publishQoS = 1

	batteryMin = 11.0
	batteryMax = 14.4
	waterMax   = 100.0
)

// publisher is the slice of transport.Session the simulator needs.
type publisher interface {
	Subscribe(ctx context.Context, topics []string, qos byte, fn func(topic string, payload []byte)) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

type fleetConfig struct {
	Realm       string
	Entity      string
	Company     string
	Serials     []string
	Interval    time.Duration
	StatusEvery int
}

// machine is the simulated physical state of one unit. Values drift a
// little on every tick.
type machine struct {
	serial  string
	battery float64
	water   float64
	area    float64
	energy  float64
	online  bool
}

type fleet struct {
	cfg    fleetConfig
	pub    publisher
	logger logger.Logger
	rng    *rand.Rand
}

func newFleet(cfg fleetConfig, pub publisher, log logger.Logger) *fleet {
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = 1
	}

	return &fleet{
		cfg:    cfg,
		pub:    pub,
		logger: log,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

func (f *fleet) topic(serial string, kind models.MessageKind) string {
	return strings.Join([]string{f.cfg.Realm, f.cfg.Company, f.cfg.Entity, serial, string(kind)}, "/")
}

// watchCommands prints every command addressed to the simulated machines.
func (f *fleet) watchCommands(ctx context.Context) error {
	topics := make([]string, 0, len(f.cfg.Serials))
	for _, serial := range f.cfg.Serials {
		topics = append(topics, f.topic(serial, models.KindCommand))
	}

	return f.pub.Subscribe(ctx, topics, publishQoS, func(topic string, payload []byte) {
		f.logger.Info().Str("topic", topic).Str("command", string(payload)).Msg("Command received")
	})
}

// Run publishes for every machine until ctx is cancelled.
func (f *fleet) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, serial := range f.cfg.Serials {
		m := &machine{
			serial:  serial,
			battery: batteryMin + f.rng.Float64()*(batteryMax-batteryMin),
			water:   f.rng.Float64() * waterMax,
			area:    math.Round(f.rng.Float64()*500) / 10,
			online:  true,
		}

		// Each machine gets its own generator; rand.Rand is not safe for
		// concurrent use.
		rng := rand.New(rand.NewPCG(f.rng.Uint64(), f.rng.Uint64()))

		g.Go(func() error { return f.simulate(gctx, m, rng) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (f *fleet) simulate(ctx context.Context, m *machine, rng *rand.Rand) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		m.step(rng)

		if err := f.publish(ctx, m.serial, models.KindTelemetry, m.telemetry()); err != nil {
			f.logger.Warn().Err(err).Str("serial", m.serial).Msg("Telemetry publish failed")
		}

		if tick%f.cfg.StatusEvery == 0 {
			if err := f.publish(ctx, m.serial, models.KindStatus, m.status()); err != nil {
				f.logger.Warn().Err(err).Str("serial", m.serial).Msg("Status publish failed")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (f *fleet) publish(ctx context.Context, serial string, kind models.MessageKind, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return f.pub.Publish(ctx, f.topic(serial, kind), publishQoS, body)
}

func (m *machine) step(rng *rand.Rand) {
	m.battery = clamp(m.battery+rng.NormFloat64()*0.05, batteryMin, batteryMax)
	m.water = clamp(m.water+rng.NormFloat64()*0.5, 0, waterMax)
	m.energy += rng.Float64() * 0.2

	// Rare outage, recovered on a later tick.
	if rng.IntN(50) == 0 {
		m.online = !m.online
	}
}

func (m *machine) telemetry() map[string]any {
	return map[string]any{
		models.FieldBattery:      round(m.battery, 2),
		models.FieldSolarVoltage: round(m.battery*1.45, 2),
		models.FieldSolarCurrent: round(m.energy/10, 2),
		models.FieldWater:        round(m.water, 1),
		models.FieldExtra: map[string]any{
			"firmware": "sim-1.0",
		},
	}
}

func (m *machine) status() map[string]any {
	label := "Running"
	if !m.online {
		label = "Offline"
	}

	return map[string]any{
		models.FieldStatus: label,
		models.FieldEnergy: round(m.energy, 2),
		models.FieldWater:  round(m.water, 1),
		models.FieldArea:   m.area,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
