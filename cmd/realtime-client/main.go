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

// WebSocket client for watching realtime machine updates
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/carverauto/solarpulse/pkg/models"
)

var errTargetRequired = errors.New("exactly one of --machine or --company is required")

type options struct {
	host    string
	secure  bool
	machine int64
	company int64
	raw     bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var opts options

	flags := pflag.NewFlagSet("realtime-client", pflag.ContinueOnError)
	flags.StringVar(&opts.host, "host", "localhost:8090", "API server host:port")
	flags.BoolVar(&opts.secure, "secure", false, "Use WSS instead of WS")
	flags.Int64Var(&opts.machine, "machine", 0, "Machine id to follow")
	flags.Int64Var(&opts.company, "company", 0, "Company id to follow")
	flags.BoolVar(&opts.raw, "raw", false, "Print frames exactly as received")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	target, err := streamURL(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Connecting to %s", target)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			log.Printf("HTTP response status: %s", resp.Status)
		}

		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	done := make(chan error, 1)

	go func() { done <- stream(conn, os.Stdout, opts.raw) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	log.Println("Closing connection")

	err = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if err != nil {
		log.Printf("Error sending close message: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
	}

	return nil
}

func streamURL(opts options) (string, error) {
	if (opts.machine > 0) == (opts.company > 0) {
		return "", errTargetRequired
	}

	scheme := "ws"
	if opts.secure {
		scheme = "wss"
	}

	path := "/realtime/" + strconv.FormatInt(opts.machine, 10)
	if opts.company > 0 {
		path = "/realtime/company/" + strconv.FormatInt(opts.company, 10)
	}

	u := url.URL{Scheme: scheme, Host: opts.host, Path: path}

	return u.String(), nil
}

// stream prints frames until the server closes the connection.
func stream(conn *websocket.Conn, out io.Writer, raw bool) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return err
		}

		if raw {
			_, _ = fmt.Fprintln(out, string(frame))
			continue
		}

		line, heartbeat := formatFrame(frame)
		if heartbeat {
			continue
		}

		_, _ = fmt.Fprintln(out, line)
	}
}

// formatFrame renders one envelope as a single line. Heartbeats are
// reported separately so they can be skipped.
func formatFrame(frame []byte) (string, bool) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "unparsed: " + string(frame), false
	}

	if env.Type == models.EnvelopeHeartbeat {
		return "", true
	}

	data, _ := json.Marshal(env.Data)

	return fmt.Sprintf("%s %-9s machine=%d %s",
		time.Now().Format(time.TimeOnly), env.Type, env.MachineID, data), false
}
