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

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/carverauto/solarpulse/pkg/config"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 30 * time.Second
	disconnectQuiesceMs   = 250
)

var ErrBrokerRequired = errors.New("mqtt broker address is required")

// PahoDialer opens sessions with the Eclipse Paho client. Paho's own
// reconnect logic is disabled; the Supervisor decides when to redial.
type PahoDialer struct {
	cfg    *models.MQTTConfig
	logger logger.Logger
}

func NewPahoDialer(cfg *models.MQTTConfig, log logger.Logger) *PahoDialer {
	return &PahoDialer{cfg: cfg, logger: log}
}

// ClientID returns the configured client id or a random one with the given prefix.
func ClientID(configured, prefix string) string {
	if configured != "" {
		return configured
	}

	return prefix + "-" + uuid.NewString()[:8]
}

func (d *PahoDialer) options(lost chan<- error) (*mqtt.ClientOptions, error) {
	if d.cfg.Broker == "" {
		return nil, ErrBrokerRequired
	}

	opts := mqtt.NewClientOptions().
		AddBroker(d.cfg.Broker).
		SetClientID(ClientID(d.cfg.ClientID, "solarpulse")).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetConnectTimeout(d.cfg.ConnectTimeout.OrDefault(defaultConnectTimeout)).
		SetKeepAlive(d.cfg.KeepAlive.OrDefault(defaultKeepAlive)).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})

	if d.cfg.Username != "" {
		opts.SetUsername(d.cfg.Username)
		opts.SetPassword(d.cfg.Password)
	}

	if d.cfg.TLS != nil {
		tlsConfig, err := config.LoadTLS(d.cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("mqtt tls: %w", err)
		}

		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

func (d *PahoDialer) Dial(ctx context.Context) (Session, error) {
	lost := make(chan error, 1)

	opts, err := d.options(lost)
	if err != nil {
		return nil, err
	}

	d.logger.Debug().Str("broker", d.cfg.Broker).Msg("Dialing MQTT broker")

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return nil, err
	}

	return &pahoSession{client: client, lost: lost}, nil
}

type pahoSession struct {
	client mqtt.Client
	lost   chan error
}

func (p *pahoSession) Subscribe(ctx context.Context, topics []string, qos byte, fn func(topic string, payload []byte)) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = qos
	}

	return wait(ctx, p.client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Topic(), msg.Payload())
	}))
}

func (p *pahoSession) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	return wait(ctx, p.client.Publish(topic, qos, false, payload))
}

func (p *pahoSession) Lost() <-chan error { return p.lost }

func (p *pahoSession) Close() {
	p.client.Disconnect(disconnectQuiesceMs)
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
