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

// Package transport keeps the MQTT session to the machine broker alive.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/metrics"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	DefaultRetryInterval = 5 * time.Second
	DefaultRealm         = "company"
	DefaultEntity        = "machine"

	commandKind = "command"
)

var (
	// ErrNotConnected is returned by Publish while no broker session is live.
	ErrNotConnected = errors.New("mqtt broker not connected")
	// ErrConnectionLost is reported when the broker drops the session without a cause.
	ErrConnectionLost = errors.New("mqtt connection lost")
)

// MessageHandler receives every inbound message in broker order.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Session is one live broker connection.
type Session interface {
	Subscribe(ctx context.Context, topics []string, qos byte, fn func(topic string, payload []byte)) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	// Lost yields once when the broker connection drops.
	Lost() <-chan error
	Close()
}

// Dialer opens broker sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DefaultTopics returns the telemetry and status subscriptions for a realm
// and entity literal.
func DefaultTopics(realm, entity string) []string {
	return []string{
		realm + "/+/" + entity + "/+/" + string(models.KindTelemetry),
		realm + "/+/" + entity + "/+/" + string(models.KindStatus),
	}
}

// Supervisor owns the broker session. Run reconnects with a fixed delay
// until its context ends; Publish uses whichever session is live.
type Supervisor struct {
	dialer  Dialer
	handler MessageHandler
	topics  []string
	qos     byte
	retry   time.Duration
	realm   string
	entity  string
	logger  logger.Logger
	metrics *metrics.Recorder

	mu      sync.RWMutex
	session Session
}

func NewSupervisor(cfg *models.MQTTConfig, dialer Dialer, handler MessageHandler, log logger.Logger, rec *metrics.Recorder) *Supervisor {
	realm := cfg.Realm
	if realm == "" {
		realm = DefaultRealm
	}

	entity := cfg.Entity
	if entity == "" {
		entity = DefaultEntity
	}

	topics := cfg.Topics
	if len(topics) == 0 {
		topics = DefaultTopics(realm, entity)
	}

	return &Supervisor{
		dialer:  dialer,
		handler: handler,
		topics:  topics,
		qos:     cfg.QoS,
		retry:   cfg.RetryInterval.OrDefault(DefaultRetryInterval),
		realm:   realm,
		entity:  entity,
		logger:  log,
		metrics: rec,
	}
}

// Run blocks until ctx is cancelled. Connection failures are logged and
// retried after the retry interval; Run never returns them.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn().
			Err(err).
			Dur("retry_in", s.retry).
			Msg("MQTT session ended, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retry):
		}
	}
}

func (s *Supervisor) runSession(ctx context.Context) error {
	sess, err := s.dialer.Dial(ctx)
	s.metrics.ConnectAttempt(ctx, err)

	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	defer func() {
		s.setSession(nil)
		sess.Close()
		s.logger.Info().Msg("Disconnected from MQTT broker")
	}()

	err = sess.Subscribe(ctx, s.topics, s.qos, func(topic string, payload []byte) {
		s.handler(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.setSession(sess)
	s.logger.Info().Strs("topics", s.topics).Msg("Connected to MQTT broker")

	select {
	case <-ctx.Done():
		return nil
	case err := <-sess.Lost():
		if err == nil {
			err = ErrConnectionLost
		}

		return err
	}
}

func (s *Supervisor) setSession(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// Connected reports whether a subscribed session is live.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session != nil
}

// CommandTopic is the topic a machine listens on for commands.
func (s *Supervisor) CommandTopic(tenant, serial string) string {
	return strings.Join([]string{s.realm, tenant, s.entity, serial, commandKind}, "/")
}

// Publish sends a command to one machine. It is not queued or retried.
func (s *Supervisor) Publish(ctx context.Context, tenant, serial string, payload []byte) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		return ErrNotConnected
	}

	topic := s.CommandTopic(tenant, serial)
	if err := sess.Publish(ctx, topic, s.qos, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}
