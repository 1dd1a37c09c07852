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

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/carverauto/solarpulse/pkg/models"
)

var errInsert = errors.New("insert failed")

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}

	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64

	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}

	return total
}

func TestRecorderCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	rec := NewRecorder(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	rec.Message(ctx, "telemetry", OutcomeOK)
	rec.Message(ctx, "telemetry", OutcomeOK)
	rec.Message(ctx, "status", OutcomeUnknown)
	rec.BufferFlush(ctx, 12, 5*time.Millisecond, nil)
	rec.BufferFlush(ctx, 3, time.Millisecond, errInsert)
	rec.BufferDropped(ctx, 0)
	rec.StatusSync(ctx, errInsert)

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, got[metricMessages], "outcome", OutcomeOK))
	assert.Equal(t, int64(1), sumFor(t, got[metricMessages], "outcome", OutcomeUnknown))
	assert.Equal(t, int64(12), sumFor(t, got[metricFlushedRows], "outcome", OutcomeOK))
	assert.Equal(t, int64(3), sumFor(t, got[metricFlushedRows], "outcome", OutcomeError))
	assert.Equal(t, int64(1), sumFor(t, got[metricStatusSyncs], "outcome", OutcomeError))

	_, recorded := got[metricDropped]
	assert.False(t, recorded, "zero drops are not recorded")
}

func TestRecorderGauge(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	rec := NewRecorder(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	var pending int64 = 7
	require.NoError(t, rec.Gauge("solarpulse_buffer_pending", "pending rows", func() int64 { return pending }))

	got := collect(t, reader)
	gauge, ok := got["solarpulse_buffer_pending"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder

	assert.NotPanics(t, func() {
		rec.Message(context.Background(), "telemetry", OutcomeOK)
		rec.Evicted(context.Background(), 2)
		require.NoError(t, rec.Gauge("x", "x", func() int64 { return 0 }))
	})
}

func TestPrometheusProviderServesInstruments(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, &models.MetricsConfig{Exporter: ExporterPrometheus}, nil, "solarpulse-test")
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	require.NotNil(t, p.Handler())

	NewRecorder(p.MeterProvider()).Message(ctx, "telemetry", OutcomeOK)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), metricMessages)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewProviderExporters(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, &models.MetricsConfig{Exporter: ExporterNone}, nil, "")
	require.NoError(t, err)
	assert.Nil(t, p.Handler())
	require.NoError(t, p.Shutdown(ctx))

	_, err = NewProvider(ctx, &models.MetricsConfig{Exporter: "statsd"}, nil, "")
	require.ErrorIs(t, err, ErrUnknownExporter)

	_, err = NewProvider(ctx, &models.MetricsConfig{Exporter: ExporterOTLP}, nil, "")
	require.ErrorIs(t, err, ErrOTLPEndpointRequired)
}
