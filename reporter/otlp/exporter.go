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

// Package otlp exports spans over OTLP by converting them to OpenTelemetry
// SDK read-only spans and handing those to an sdktrace.SpanExporter.
package otlp

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// DefaultEndpoint is the OTLP/HTTP collector of a local agent.
const DefaultEndpoint = "http://localhost:4318"

// Exporter adapts an sdktrace.SpanExporter to tracecontext.Exporter.
type Exporter struct {
	exporter sdktrace.SpanExporter

	mu        sync.Mutex
	resources map[tracecontext.Resource]*resource.Resource
}

// Wrap returns an Exporter forwarding to e.
func Wrap(e sdktrace.SpanExporter) *Exporter {
	return &Exporter{
		exporter:  e,
		resources: map[tracecontext.Resource]*resource.Resource{},
	}
}

// New returns an Exporter posting OTLP/HTTP protobuf to endpoint, a URL
// such as DefaultEndpoint. The traces path is appended by the client.
func New(ctx context.Context, endpoint string, opts ...otlptracehttp.Option) (*Exporter, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	opts = append([]otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint + "/v1/traces")}, opts...)
	e, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp: create trace exporter: %w", err)
	}
	return Wrap(e), nil
}

// ExportSpans implements tracecontext.Exporter.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracecontext.SpanSnapshot) error {
	out := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, s := range spans {
		out = append(out, e.stub(s).Snapshot())
	}
	return e.exporter.ExportSpans(ctx, out)
}

// Shutdown implements tracecontext.Exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

func (e *Exporter) stub(s tracecontext.SpanSnapshot) tracetest.SpanStub {
	stub := tracetest.SpanStub{
		Name:              s.Name,
		SpanContext:       spanContext(s.SpanContext),
		SpanKind:          spanKind(s.Kind),
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Attributes:        attributes(s.Attributes),
		Status:            sdktrace.Status{Code: statusCode(s.Status.Code), Description: s.Status.Description},
		DroppedAttributes: s.DroppedAttributes,
		DroppedEvents:     s.DroppedEvents,
		Resource:          e.resource(s.Resource),
		InstrumentationLibrary: instrumentation.Scope{
			Name:    s.Scope.Name,
			Version: s.Scope.Version,
		},
	}
	if s.HasParent() {
		stub.Parent = spanContext(s.Parent)
	}
	for _, ev := range s.Events {
		stub.Events = append(stub.Events, sdktrace.Event{
			Name:       ev.Name,
			Time:       ev.Time,
			Attributes: attributes(ev.Attributes),
		})
	}
	return stub
}

func (e *Exporter) resource(r tracecontext.Resource) *resource.Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if res, ok := e.resources[r]; ok {
		return res
	}
	kvs := []attribute.KeyValue{semconv.ServiceNameKey.String(r.ServiceName)}
	if r.ServiceVersion != "" {
		kvs = append(kvs, semconv.ServiceVersionKey.String(r.ServiceVersion))
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, kvs...)
	e.resources[r] = res
	return res
}

func spanContext(sc tracecontext.SpanContext) trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID(sc.TraceID),
		SpanID:     trace.SpanID(sc.SpanID),
		TraceFlags: trace.TraceFlags(sc.TraceFlags),
		Remote:     sc.Remote,
	})
}

func attributes(kvs []tracecontext.KeyValue) []attribute.KeyValue {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		switch kv.Value.Type() {
		case tracecontext.StringType:
			out = append(out, attribute.String(kv.Key, kv.Value.AsString()))
		case tracecontext.Int64Type:
			out = append(out, attribute.Int64(kv.Key, kv.Value.AsInt64()))
		case tracecontext.Float64Type:
			out = append(out, attribute.Float64(kv.Key, kv.Value.AsFloat64()))
		case tracecontext.BoolType:
			out = append(out, attribute.Bool(kv.Key, kv.Value.AsBool()))
		}
	}
	return out
}

func spanKind(k tracecontext.SpanKind) trace.SpanKind {
	switch k {
	case tracecontext.SpanKindServer:
		return trace.SpanKindServer
	case tracecontext.SpanKindClient:
		return trace.SpanKindClient
	case tracecontext.SpanKindProducer:
		return trace.SpanKindProducer
	case tracecontext.SpanKindConsumer:
		return trace.SpanKindConsumer
	}
	return trace.SpanKindInternal
}

func statusCode(c tracecontext.StatusCode) codes.Code {
	switch c {
	case tracecontext.StatusOK:
		return codes.Ok
	case tracecontext.StatusError:
		return codes.Error
	}
	return codes.Unset
}
