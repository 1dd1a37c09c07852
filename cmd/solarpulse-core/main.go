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
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/carverauto/solarpulse/cmd/solarpulse-core/app"
	"github.com/carverauto/solarpulse/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var opts app.Options

	flags := pflag.NewFlagSet("solarpulse-core", pflag.ContinueOnError)
	flags.StringVar(&opts.ConfigPath, "config", "", "Path to core config file (JSON or YAML)")
	flags.StringVar(&opts.ListenAddr, "listen", "", "Override the HTTP listen address")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	showVersion := flags.Bool("version", false, "Print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, opts)
}
