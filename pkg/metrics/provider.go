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

// Package metrics wires the OTel metrics pipeline and the instruments the
// ingestion pipeline records into.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc/credentials"

	"github.com/carverauto/solarpulse/pkg/config"
	"github.com/carverauto/solarpulse/pkg/logger"
	"github.com/carverauto/solarpulse/pkg/models"
)

const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterNone       = "none"

	defaultExportInterval = 15 * time.Second
)

var (
	ErrUnknownExporter      = errors.New("unknown metrics exporter")
	ErrOTLPEndpointRequired = errors.New("otlp metrics exporter requires logging.otel.endpoint")
)

// Provider owns the process MeterProvider and, for the Prometheus exporter,
// the scrape handler.
type Provider struct {
	meterProvider metric.MeterProvider
	sdk           *sdkmetric.MeterProvider
	handler       http.Handler
}

// NewProvider builds the MeterProvider selected by cfg.Exporter and installs
// it as the OTel global. An empty exporter selects Prometheus. The OTLP
// exporter reuses the collector endpoint from otelCfg.
func NewProvider(ctx context.Context, cfg *models.MetricsConfig, otelCfg *logger.OTelConfig, serviceName string) (*Provider, error) {
	exporter := ExporterPrometheus
	if cfg != nil && cfg.Exporter != "" {
		exporter = strings.ToLower(cfg.Exporter)
	}

	if exporter == ExporterNone {
		return &Provider{meterProvider: noop.NewMeterProvider()}, nil
	}

	res, err := logger.ServiceResource(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	p := &Provider{}

	switch exporter {
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		reader, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		p.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		p.sdk = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	case ExporterOTLP:
		reader, err := otlpReader(ctx, cfg, otelCfg)
		if err != nil {
			return nil, err
		}

		p.sdk = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporter)
	}

	p.meterProvider = p.sdk
	otel.SetMeterProvider(p.sdk)

	return p, nil
}

func otlpReader(ctx context.Context, cfg *models.MetricsConfig, otelCfg *logger.OTelConfig) (sdkmetric.Reader, error) {
	if otelCfg == nil || otelCfg.Endpoint == "" {
		return nil, ErrOTLPEndpointRequired
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(otelCfg.Endpoint)}

	if otelCfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if otelCfg.TLS != nil {
		tlsConfig, err := config.LoadTLS(otelCfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics TLS configuration: %w", err)
		}

		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(otelCfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(otelCfg.Headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	interval := defaultExportInterval
	if cfg != nil && cfg.ExportInterval > 0 {
		interval = cfg.ExportInterval.Std()
	}

	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

// MeterProvider returns the provider instruments should be created from.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Handler returns the Prometheus scrape handler, or nil when another
// exporter is configured.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes pending exports.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}

	return p.sdk.Shutdown(ctx)
}
