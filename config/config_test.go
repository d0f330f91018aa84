// Copyright 2022 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/config"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/propagation/b3"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/recorder"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "unknown_service", cfg.ServiceName)
	assert.Equal(t, config.ExporterOTLP, cfg.Exporter)
	assert.Equal(t, "http://localhost:4318", cfg.OTLPEndpoint)
	assert.Equal(t, []string{"tracecontext"}, cfg.Propagators)
	assert.Equal(t, "traceparent", cfg.TraceParentHeader)
	assert.Equal(t, 1.0, cfg.SamplerRatio)
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchInterval)
	assert.Equal(t, 3, cfg.MaxExportAttempts)
	assert.Equal(t, 128, cfg.EventCountLimit)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "order-transmission")
	t.Setenv("OTEL_SERVICE_VERSION", "1.2.0")
	t.Setenv("OTEL_TRACES_EXPORTER", "zipkin")
	t.Setenv("OTEL_PROPAGATORS", "tracecontext,b3")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	t.Setenv("TRACECONTEXT_BSP_INTERVAL", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "order-transmission", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.ServiceVersion)
	assert.Equal(t, config.ExporterZipkin, cfg.Exporter)
	assert.Equal(t, []string{"tracecontext", "b3"}, cfg.Propagators)
	assert.Equal(t, 0.25, cfg.SamplerRatio)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchInterval)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("OTEL_BSP_MAX_EXPORT_BATCH_SIZE", "lots")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestNewPropagator(t *testing.T) {
	for _, tc := range []struct {
		names []string
		check func(t *testing.T, p tracecontext.Propagator)
	}{
		{
			names: []string{"tracecontext"},
			check: func(t *testing.T, p tracecontext.Propagator) {
				_, ok := p.(*tracecontext.TraceContext)
				assert.True(t, ok)
				assert.Equal(t, []string{"traceparent"}, p.Fields())
			},
		},
		{
			names: []string{"b3multi"},
			check: func(t *testing.T, p tracecontext.Propagator) {
				_, ok := p.(*b3.Propagator)
				assert.True(t, ok)
			},
		},
		{
			names: []string{"tracecontext", "b3"},
			check: func(t *testing.T, p tracecontext.Propagator) {
				c, ok := p.(tracecontext.CompositePropagator)
				require.True(t, ok)
				assert.Equal(t, 2, len(c))
				assert.Equal(t, []string{"traceparent", "b3"}, p.Fields())
			},
		},
		{
			names: []string{"none"},
			check: func(t *testing.T, p tracecontext.Propagator) {
				assert.Empty(t, p.Fields())
			},
		},
	} {
		cfg := &config.Config{Propagators: tc.names, TraceParentHeader: "traceparent"}
		p, err := cfg.NewPropagator()
		require.NoError(t, err, tc.names)
		tc.check(t, p)
	}

	_, err := (&config.Config{Propagators: []string{"jaeger"}}).NewPropagator()
	assert.True(t, errors.Is(err, config.ErrUnknownPropagator))
}

func TestNewPropagatorCustomHeader(t *testing.T) {
	cfg := &config.Config{Propagators: []string{"tracecontext"}, TraceParentHeader: "X-Trace-Parent"}
	p, err := cfg.NewPropagator()
	require.NoError(t, err)
	assert.Equal(t, []string{"x-trace-parent"}, p.Fields())
}

func TestNewTracerProviderBatchesIntoExporter(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.ServiceName = "time-estimation"

	rec := recorder.New()
	reg := prometheus.NewRegistry()
	tp, err := cfg.NewTracerProvider(context.Background(), config.WithExporter(rec), config.WithRegisterer(reg))
	require.NoError(t, err)

	_, span := tp.Tracer("test", "").Start(context.Background(), "estimate")
	span.End()
	assert.Equal(t, 0, len(rec.Spans()))

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := rec.Spans()
	require.Equal(t, 1, len(spans))
	assert.Equal(t, "time-estimation", spans[0].Resource.ServiceName)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.True(t, rec.IsShutdown())
}

func TestNewTracerProviderExporters(t *testing.T) {
	for _, name := range []string{config.ExporterNone, config.ExporterConsole, config.ExporterNetTrace, config.ExporterZipkin, config.ExporterOTLP} {
		cfg, err := config.Load()
		require.NoError(t, err)
		cfg.Exporter = name

		tp, err := cfg.NewTracerProvider(context.Background())
		require.NoError(t, err, name)
		_, span := tp.Tracer("test", "").Start(context.Background(), "x")
		assert.True(t, span.IsRecording(), name)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = tp.Shutdown(ctx)
		cancel()
		span.End()
	}
}

func TestNewTracerProviderErrors(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Exporter = "jaeger"
	_, err = cfg.NewTracerProvider(context.Background())
	assert.True(t, errors.Is(err, config.ErrUnknownExporter))

	cfg.Exporter = config.ExporterNone
	cfg.SamplerRatio = 2
	_, err = cfg.NewTracerProvider(context.Background())
	assert.Error(t, err)
}

func TestSamplerRatioZeroNeverRecords(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Exporter = config.ExporterNone
	cfg.SamplerRatio = 0

	tp, err := cfg.NewTracerProvider(context.Background())
	require.NoError(t, err)
	_, span := tp.Tracer("test", "").Start(context.Background(), "x")
	assert.False(t, span.IsRecording())
	assert.True(t, span.SpanContext().IsValid())
}
