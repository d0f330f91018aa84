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

// Package otbridge exposes a tracecontext.Tracer as an opentracing.Tracer so
// code instrumented against OpenTracing records into the same traces.
package otbridge

import (
	"context"
	"errors"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// SpanContext is the opentracing.SpanContext handed out by the bridge.
// Baggage is not supported.
type SpanContext tracecontext.SpanContext

// ForeachBaggageItem belongs to the opentracing.SpanContext interface.
func (c SpanContext) ForeachBaggageItem(func(k, v string) bool) {}

type tracerImpl struct {
	tracer     *tracecontext.Tracer
	propagator tracecontext.Propagator
	observer   *observer
}

// Wrap receives a tracecontext tracer and returns an opentracing tracer.
func Wrap(tr *tracecontext.Tracer, opts ...TracerOption) opentracing.Tracer {
	o := &TracerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	t := &tracerImpl{
		tracer:     tr,
		propagator: o.propagator,
	}
	if t.propagator == nil {
		t.propagator = tracecontext.NewTraceContext()
	}
	if len(o.observers) > 0 {
		t.observer = &observer{observers: o.observers}
	}
	return t
}

func (t *tracerImpl) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var startSpanOptions opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&startSpanOptions)
	}

	ctx := context.Background()
	// Parent
	for _, ref := range startSpanOptions.References {
		parent, ok := ref.ReferencedContext.(SpanContext)
		if !ok || !tracecontext.SpanContext(parent).IsValid() {
			continue
		}
		ctx = tracecontext.ContextWithSpanContext(ctx, tracecontext.SpanContext(parent))
		break
	}

	sopts := parseTagsAsSpanOptions(startSpanOptions.Tags)
	// Time
	if !startSpanOptions.StartTime.IsZero() {
		sopts = append(sopts, tracecontext.WithTimestamp(startSpanOptions.StartTime))
	}

	_, span := t.tracer.Start(ctx, operationName, sopts...)
	sp := &spanImpl{
		tracer: t,
		span:   span,
	}
	if isError(startSpanOptions.Tags[string(ext.Error)]) {
		span.SetStatus(tracecontext.StatusError, "")
	}
	if t.observer != nil {
		sp.observer, _ = t.observer.OnStartSpan(sp, operationName, startSpanOptions)
	}
	return sp
}

func parseTagsAsSpanOptions(tags map[string]interface{}) []tracecontext.SpanStartOption {
	var sopts []tracecontext.SpanStartOption

	if val, ok := tags[string(ext.SpanKind)]; ok {
		sopts = append(sopts, tracecontext.WithSpanKind(spanKind(val)))
	}

	attrs := make([]tracecontext.KeyValue, 0, len(tags))
	for key, val := range tags {
		if key == string(ext.SpanKind) ||
			key == string(ext.SamplingPriority) ||
			key == string(ext.Error) {
			continue
		}
		attrs = append(attrs, tracecontext.Any(key, val))
	}
	if len(attrs) > 0 {
		sopts = append(sopts, tracecontext.WithAttributes(attrs...))
	}
	return sopts
}

func spanKind(val interface{}) tracecontext.SpanKind {
	var kind string
	switch v := val.(type) {
	case string:
		kind = v
	case ext.SpanKindEnum:
		kind = string(v)
	}
	switch strings.ToLower(kind) {
	case string(ext.SpanKindRPCServerEnum):
		return tracecontext.SpanKindServer
	case string(ext.SpanKindRPCClientEnum):
		return tracecontext.SpanKindClient
	case string(ext.SpanKindProducerEnum):
		return tracecontext.SpanKindProducer
	case string(ext.SpanKindConsumerEnum):
		return tracecontext.SpanKindConsumer
	}
	return tracecontext.SpanKindInternal
}

func isError(val interface{}) bool {
	b, ok := val.(bool)
	return ok && b
}

func (t *tracerImpl) Inject(sc opentracing.SpanContext, format interface{}, carrier interface{}) error {
	spanContext, ok := sc.(SpanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders, opentracing.Binary:
		// Binary carriers are accepted when they implement TextMapWriter
		w, ok := carrier.(opentracing.TextMapWriter)
		if !ok {
			return opentracing.ErrInvalidCarrier
		}
		ctx := tracecontext.ContextWithSpanContext(context.Background(), tracecontext.SpanContext(spanContext))
		return t.propagator.Inject(ctx, w)
	}
	return opentracing.ErrUnsupportedFormat
}

func (t *tracerImpl) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders, opentracing.Binary:
		r, ok := carrier.(opentracing.TextMapReader)
		if !ok {
			return nil, opentracing.ErrInvalidCarrier
		}
		sc, err := t.propagator.ExtractSpanContext(r)
		if errors.Is(err, tracecontext.ErrMalformedIdentifier) {
			return nil, opentracing.ErrSpanContextCorrupted
		}
		if err != nil {
			return nil, err
		}
		return SpanContext(sc), nil
	}
	return nil, opentracing.ErrUnsupportedFormat
}

// Unwrap returns the tracecontext span behind an OpenTracing span created by
// the bridge, or nil for foreign spans.
func Unwrap(sp opentracing.Span) *tracecontext.Span {
	if s, ok := sp.(*spanImpl); ok {
		return s.span
	}
	return nil
}

// ContextWithSpan returns ctx with the span behind sp current, so native
// instrumentation started from ctx becomes its child.
func ContextWithSpan(ctx context.Context, sp opentracing.Span) context.Context {
	if s := Unwrap(sp); s != nil {
		return tracecontext.ContextWithSpan(ctx, s)
	}
	return ctx
}
