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

// Package config assembles a TracerProvider and a Propagator from the
// standard OTEL_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/propagation/b3"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/console"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/nettrace"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/otlp"
	"github.com/openzipkin-contrib/zipkin-go-tracecontext/reporter/zipkin"
)

// Exporter names accepted in OTEL_TRACES_EXPORTER.
const (
	ExporterOTLP     = "otlp"
	ExporterZipkin   = "zipkin"
	ExporterConsole  = "console"
	ExporterNetTrace = "nettrace"
	ExporterNone     = "none"
)

// Propagator names accepted in OTEL_PROPAGATORS.
const (
	PropagatorTraceContext = "tracecontext"
	PropagatorB3           = "b3"
	PropagatorB3Multi      = "b3multi"
	PropagatorNone         = "none"
)

// Errors returned for unsupported settings.
var (
	ErrUnknownExporter   = errors.New("config: unknown traces exporter")
	ErrUnknownPropagator = errors.New("config: unknown propagator")
)

// Config holds the tracing configuration of a process.
type Config struct {
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"unknown_service"`
	ServiceVersion string `envconfig:"OTEL_SERVICE_VERSION"`

	Exporter       string `envconfig:"OTEL_TRACES_EXPORTER" default:"otlp"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"http://localhost:4318"`
	ZipkinEndpoint string `envconfig:"OTEL_EXPORTER_ZIPKIN_ENDPOINT" default:"http://localhost:9411/api/v2/spans"`
	// ZipkinHostPort is reported as the local endpoint of Zipkin spans.
	ZipkinHostPort string `envconfig:"TRACECONTEXT_ZIPKIN_HOSTPORT"`

	Propagators       []string `envconfig:"OTEL_PROPAGATORS" default:"tracecontext"`
	TraceParentHeader string   `envconfig:"TRACECONTEXT_HEADER" default:"traceparent"`

	SamplerRatio float64 `envconfig:"OTEL_TRACES_SAMPLER_ARG" default:"1"`

	BatchSize         int           `envconfig:"OTEL_BSP_MAX_EXPORT_BATCH_SIZE" default:"512"`
	MaxQueueSize      int           `envconfig:"OTEL_BSP_MAX_QUEUE_SIZE" default:"2048"`
	BatchInterval     time.Duration `envconfig:"TRACECONTEXT_BSP_INTERVAL" default:"5s"`
	ExportTimeout     time.Duration `envconfig:"TRACECONTEXT_BSP_EXPORT_TIMEOUT" default:"30s"`
	MaxExportAttempts int           `envconfig:"TRACECONTEXT_BSP_MAX_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `envconfig:"TRACECONTEXT_BSP_RETRY_BACKOFF" default:"100ms"`

	EventCountLimit     int `envconfig:"OTEL_SPAN_EVENT_COUNT_LIMIT" default:"128"`
	AttributeCountLimit int `envconfig:"OTEL_SPAN_ATTRIBUTE_COUNT_LIMIT" default:"128"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Option sets a parameter for NewTracerProvider and NewPropagator.
type Option func(o *options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	exporter   tracecontext.Exporter
}

// WithLogger routes tracing problems, and the console exporter, to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the batch processor counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithExporter bypasses OTEL_TRACES_EXPORTER and batches into e.
func WithExporter(e tracecontext.Exporter) Option {
	return func(o *options) { o.exporter = e }
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewTracerProvider builds a provider exporting through a batch processor.
// With the "none" exporter spans are sampled and propagated but never
// exported.
func (c *Config) NewTracerProvider(ctx context.Context, opts ...Option) (*tracecontext.TracerProvider, error) {
	o := newOptions(opts)
	logger := tracecontext.NewZapLogger(o.logger)

	sampler, err := tracecontext.NewBoundarySampler(c.SamplerRatio, 0)
	if err != nil {
		return nil, fmt.Errorf("config: sampler: %w", err)
	}

	exporter := o.exporter
	if exporter == nil {
		if exporter, err = c.newExporter(ctx, o.logger); err != nil {
			return nil, err
		}
	}

	tpOpts := []tracecontext.TracerProviderOption{
		tracecontext.WithSampler(sampler),
		tracecontext.WithService(c.ServiceName, c.ServiceVersion),
		tracecontext.WithLogger(logger),
		tracecontext.WithSpanLimits(tracecontext.SpanLimits{
			AttributeCountLimit: c.AttributeCountLimit,
			EventCountLimit:     c.EventCountLimit,
		}),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, tracecontext.WithSpanProcessor(tracecontext.NewBatchSpanProcessor(
			exporter,
			tracecontext.BatchLogger(logger),
			tracecontext.BatchSize(c.BatchSize),
			tracecontext.MaxQueueSize(c.MaxQueueSize),
			tracecontext.BatchInterval(c.BatchInterval),
			tracecontext.ExportTimeout(c.ExportTimeout),
			tracecontext.MaxExportAttempts(c.MaxExportAttempts),
			tracecontext.RetryBackoff(c.RetryBackoff),
			tracecontext.BatchRegisterer(o.registerer),
		)))
	}
	return tracecontext.NewTracerProvider(tpOpts...), nil
}

func (c *Config) newExporter(ctx context.Context, logger *zap.Logger) (tracecontext.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(c.Exporter)) {
	case ExporterOTLP:
		return otlp.New(ctx, c.OTLPEndpoint)
	case ExporterZipkin:
		var zopts []zipkin.Option
		if c.ZipkinHostPort != "" {
			if ep := zipkin.NewEndpoint(c.ServiceName, c.ZipkinHostPort); ep != nil {
				zopts = append(zopts, zipkin.LocalEndpoint(ep))
			}
		}
		return zipkin.NewHTTP(c.ZipkinEndpoint, zopts...), nil
	case ExporterConsole:
		return console.New(logger)
	case ExporterNetTrace:
		return nettrace.New(), nil
	case ExporterNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, c.Exporter)
}

// NewPropagator builds the propagators listed in OTEL_PROPAGATORS. Several
// names yield a composite that injects all of them and extracts with the
// first that matches.
func (c *Config) NewPropagator(opts ...Option) (tracecontext.Propagator, error) {
	o := newOptions(opts)
	tcOpts := []tracecontext.PropagatorOption{tracecontext.WithPropagatorLogger(tracecontext.NewZapLogger(o.logger))}
	if c.TraceParentHeader != "" {
		tcOpts = append(tcOpts, tracecontext.WithHeaderName(c.TraceParentHeader))
	}

	var ps tracecontext.CompositePropagator
	for _, name := range c.Propagators {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case PropagatorTraceContext:
			ps = append(ps, tracecontext.NewTraceContext(tcOpts...))
		case PropagatorB3:
			ps = append(ps, b3.New(b3.InjectSingleHeader()))
		case PropagatorB3Multi:
			ps = append(ps, b3.New())
		case PropagatorNone, "":
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownPropagator, name)
		}
	}
	if len(ps) == 1 {
		return ps[0], nil
	}
	return ps, nil
}
