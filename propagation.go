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

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
)

// Propagator moves a SpanContext across a process boundary through a
// text carrier. Carriers are the opentracing TextMap interfaces so that
// http.Header (opentracing.HTTPHeadersCarrier), plain maps
// (opentracing.TextMapCarrier), gRPC metadata and message fields all share
// one algorithm.
type Propagator interface {
	// Inject writes the span context current in ctx into carrier. It is a
	// no-op when no valid span context is current.
	Inject(ctx context.Context, carrier opentracing.TextMapWriter) error
	// Extract returns ctx with the span context read from carrier as a
	// remote parent. Absent or malformed data leaves ctx untouched.
	Extract(ctx context.Context, carrier opentracing.TextMapReader) context.Context
	// ExtractSpanContext is the error-reporting form of Extract.
	ExtractSpanContext(carrier opentracing.TextMapReader) (SpanContext, error)
	// Fields lists the carrier keys the propagator writes.
	Fields() []string
}

const (
	// DefaultTraceParentHeader is the W3C trace context header name.
	DefaultTraceParentHeader = "traceparent"

	traceContextVersion = 0
	maxVersion          = 254
	traceParentLen      = 55
)

// TraceContext is the W3C trace context propagator writing a single
// "<version>-<trace-id>-<span-id>-<flags>" field.
type TraceContext struct {
	header string
	logger Logger
}

// PropagatorOption configures a propagator.
type PropagatorOption func(p *TraceContext)

// WithHeaderName overrides the carrier key, "traceparent" by default.
func WithHeaderName(name string) PropagatorOption {
	return func(p *TraceContext) { p.header = strings.ToLower(name) }
}

// WithPropagatorLogger reports malformed inbound data to logger. Nothing is
// logged by default.
func WithPropagatorLogger(logger Logger) PropagatorOption {
	return func(p *TraceContext) { p.logger = logger }
}

// NewTraceContext returns a W3C trace context propagator.
func NewTraceContext(opts ...PropagatorOption) *TraceContext {
	p := &TraceContext{
		header: DefaultTraceParentHeader,
		logger: NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fields implements Propagator.
func (p *TraceContext) Fields() []string { return []string{p.header} }

// Inject implements Propagator.
func (p *TraceContext) Inject(ctx context.Context, carrier opentracing.TextMapWriter) error {
	if carrier == nil {
		return opentracing.ErrInvalidCarrier
	}
	sc := SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	carrier.Set(p.header, FormatTraceParent(sc))
	return nil
}

// FormatTraceParent renders sc in the version 00 traceparent format.
func FormatTraceParent(sc SpanContext) string {
	return fmt.Sprintf("%02x-%s-%s-%02x", traceContextVersion, sc.TraceID, sc.SpanID, byte(sc.TraceFlags&FlagsSampled))
}

// Extract implements Propagator.
func (p *TraceContext) Extract(ctx context.Context, carrier opentracing.TextMapReader) context.Context {
	sc, err := p.ExtractSpanContext(carrier)
	if err != nil {
		if err != opentracing.ErrSpanContextNotFound {
			_ = p.logger.Log("msg", "ignoring inbound trace context", "err", err.Error())
		}
		return ctx
	}
	return ContextWithRemoteSpanContext(ctx, sc)
}

// ExtractSpanContext implements Propagator. It returns
// opentracing.ErrSpanContextNotFound when the carrier has no entry,
// ErrMalformedIdentifier for invalid ids and
// opentracing.ErrSpanContextCorrupted for any other format violation.
func (p *TraceContext) ExtractSpanContext(carrier opentracing.TextMapReader) (SpanContext, error) {
	if carrier == nil {
		return SpanContext{}, opentracing.ErrInvalidCarrier
	}
	var value string
	err := carrier.ForeachKey(func(k, v string) error {
		if strings.ToLower(k) == p.header {
			value = v
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, err
	}
	if value == "" {
		return SpanContext{}, opentracing.ErrSpanContextNotFound
	}
	return ParseTraceParent(value)
}

// ParseTraceParent decodes a traceparent value. Versions above 00 are
// accepted as long as their first four fields have the 00 layout.
func ParseTraceParent(value string) (SpanContext, error) {
	value = strings.TrimSpace(value)
	if len(value) < traceParentLen {
		return SpanContext{}, fmt.Errorf("%w: traceparent too short", opentracing.ErrSpanContextCorrupted)
	}
	parts := strings.Split(value, "-")
	if len(parts) < 4 {
		return SpanContext{}, fmt.Errorf("%w: traceparent has %d fields", opentracing.ErrSpanContextCorrupted, len(parts))
	}

	version, err := decodeByte(parts[0])
	if err != nil || version > maxVersion {
		return SpanContext{}, fmt.Errorf("%w: invalid version %q", opentracing.ErrSpanContextCorrupted, parts[0])
	}
	if version == traceContextVersion && (len(value) != traceParentLen || len(parts) != 4) {
		return SpanContext{}, fmt.Errorf("%w: version 00 must have exactly four fields", opentracing.ErrSpanContextCorrupted)
	}

	traceID, err := ParseTraceID(parts[1])
	if err != nil {
		return SpanContext{}, err
	}
	spanID, err := ParseSpanID(parts[2])
	if err != nil {
		return SpanContext{}, err
	}
	flags, err := decodeByte(parts[3])
	if err != nil {
		return SpanContext{}, fmt.Errorf("%w: invalid flags %q", opentracing.ErrSpanContextCorrupted, parts[3])
	}

	return SpanContext{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: TraceFlags(flags) & FlagsSampled,
		Remote:     true,
	}, nil
}

func decodeByte(h string) (byte, error) {
	if len(h) != 2 || strings.ToLower(h) != h {
		return 0, ErrMalformedIdentifier
	}
	var b [1]byte
	if _, err := hex.Decode(b[:], []byte(h)); err != nil {
		return 0, err
	}
	return b[0], nil
}

// CompositePropagator injects with every member and extracts with the first
// member that finds a valid span context.
type CompositePropagator []Propagator

// NewCompositePropagator combines propagators in priority order.
func NewCompositePropagator(p ...Propagator) CompositePropagator {
	return CompositePropagator(p)
}

// Fields implements Propagator.
func (c CompositePropagator) Fields() []string {
	var fields []string
	for _, p := range c {
		fields = append(fields, p.Fields()...)
	}
	return fields
}

// Inject implements Propagator.
func (c CompositePropagator) Inject(ctx context.Context, carrier opentracing.TextMapWriter) error {
	for _, p := range c {
		if err := p.Inject(ctx, carrier); err != nil {
			return err
		}
	}
	return nil
}

// Extract implements Propagator.
func (c CompositePropagator) Extract(ctx context.Context, carrier opentracing.TextMapReader) context.Context {
	sc, err := c.ExtractSpanContext(carrier)
	if err != nil {
		return ctx
	}
	return ContextWithRemoteSpanContext(ctx, sc)
}

// ExtractSpanContext implements Propagator. The error of the last member
// is returned when none succeeds.
func (c CompositePropagator) ExtractSpanContext(carrier opentracing.TextMapReader) (SpanContext, error) {
	err := opentracing.ErrSpanContextNotFound
	for _, p := range c {
		var sc SpanContext
		if sc, err = p.ExtractSpanContext(carrier); err == nil {
			return sc, nil
		}
	}
	return SpanContext{}, err
}
