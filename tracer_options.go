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

package tracecontext

import "time"

// SpanLimits bounds the amount of data a single span may accumulate. A
// negative limit means unlimited.
type SpanLimits struct {
	AttributeCountLimit int
	EventCountLimit     int
}

// DefaultSpanLimits returns the limits used when none are configured.
func DefaultSpanLimits() SpanLimits {
	return SpanLimits{AttributeCountLimit: 128, EventCountLimit: 128}
}

// TracerProviderOptions allows creating a customized TracerProvider.
type TracerProviderOptions struct {
	processors       []SpanProcessor
	syncers          []Exporter
	sampler          Sampler
	idGenerator      IDGenerator
	limits           SpanLimits
	resource         Resource
	logger           Logger
	logErrorInterval time.Duration
}

// TracerProviderOption allows for functional options.
// See: http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis
type TracerProviderOption func(opts *TracerProviderOptions)

// WithSpanProcessor registers a processor receiving every ended span.
func WithSpanProcessor(p SpanProcessor) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.processors = append(opts.processors, p)
	}
}

// WithSyncer registers exporter behind a SimpleSpanProcessor.
func WithSyncer(exporter Exporter) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.syncers = append(opts.syncers, exporter)
	}
}

// WithSampler sets the root sampler. The default samples every trace.
func WithSampler(s Sampler) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.sampler = s
	}
}

// WithIDGenerator replaces the random identifier source.
func WithIDGenerator(g IDGenerator) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.idGenerator = g
	}
}

// WithSpanLimits overrides DefaultSpanLimits.
func WithSpanLimits(l SpanLimits) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.limits = l
	}
}

// WithService sets the service name and version attached to every span.
func WithService(name, version string) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.resource = Resource{ServiceName: name, ServiceVersion: version}
	}
}

// WithLogger sets the logger used to report misuse and export problems. By
// default a no-op logger is used.
func WithLogger(logger Logger) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.logger = logger
	}
}

// WithLogErrorInterval sets how often an identical error is logged.
func WithLogErrorInterval(d time.Duration) TracerProviderOption {
	return func(opts *TracerProviderOptions) {
		opts.logErrorInterval = d
	}
}

// SpanStartOption configures a span at creation.
type SpanStartOption func(cfg *spanConfig)

type spanConfig struct {
	kind       SpanKind
	attributes []KeyValue
	timestamp  time.Time
	newRoot    bool
}

// WithSpanKind sets the span kind. The default is SpanKindInternal.
func WithSpanKind(kind SpanKind) SpanStartOption {
	return func(cfg *spanConfig) { cfg.kind = kind }
}

// WithAttributes sets initial attributes.
func WithAttributes(kvs ...KeyValue) SpanStartOption {
	return func(cfg *spanConfig) { cfg.attributes = append(cfg.attributes, kvs...) }
}

// WithTimestamp overrides the start time.
func WithTimestamp(t time.Time) SpanStartOption {
	return func(cfg *spanConfig) { cfg.timestamp = t }
}

// WithNewRoot ignores any span current in the context and starts a new trace.
func WithNewRoot() SpanStartOption {
	return func(cfg *spanConfig) { cfg.newRoot = true }
}
