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

package tracecontext_test

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

var keys []string

func init() {
	keys = make([]string, 1000)
	for j := 0; j < len(keys); j++ {
		keys[j] = fmt.Sprintf("%d", rand.Uint64())
	}
}

// countingExporter counts exported spans.
type countingExporter struct{ n atomic.Int64 }

func (c *countingExporter) ExportSpans(_ context.Context, spans []tracecontext.SpanSnapshot) error {
	c.n.Add(int64(len(spans)))
	return nil
}

func (c *countingExporter) Shutdown(context.Context) error { return nil }

func newBenchTracer(e tracecontext.Exporter) *tracecontext.Tracer {
	return tracecontext.NewTracerProvider(tracecontext.WithSyncer(e)).Tracer("bench", "")
}

func executeOps(sp *tracecontext.Span, numEvent, numAttr int) {
	for j := 0; j < numEvent; j++ {
		sp.AddEvent("event")
	}
	for j := 0; j < numAttr; j++ {
		sp.SetAttributes(tracecontext.String(keys[j], keys[j]))
	}
}

func benchmarkWithOps(b *testing.B, numEvent, numAttr int) {
	var e countingExporter
	tracer := newBenchTracer(&e)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, sp := tracer.Start(ctx, "test")
		executeOps(sp, numEvent, numAttr)
		sp.End()
	}
	b.StopTimer()
	if int(e.n.Load()) != b.N {
		b.Fatalf("missing spans: expected %d, got %d", b.N, e.n.Load())
	}
}

func BenchmarkSpan_Empty(b *testing.B) {
	benchmarkWithOps(b, 0, 0)
}

func BenchmarkSpan_100Events(b *testing.B) {
	benchmarkWithOps(b, 100, 0)
}

func BenchmarkSpan_1000Events(b *testing.B) {
	benchmarkWithOps(b, 1000, 0)
}

func BenchmarkSpan_100Attributes(b *testing.B) {
	benchmarkWithOps(b, 0, 100)
}

func BenchmarkSpan_1000Attributes(b *testing.B) {
	benchmarkWithOps(b, 0, 1000)
}

func BenchmarkInject_TraceContext(b *testing.B) {
	var e countingExporter
	ctx, sp := newBenchTracer(&e).Start(context.Background(), "testing")
	defer sp.End()
	p := tracecontext.NewTraceContext()
	carrier := opentracing.HTTPHeadersCarrier(http.Header{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.Inject(ctx, carrier); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExtract_TraceContext(b *testing.B) {
	var e countingExporter
	ctx, sp := newBenchTracer(&e).Start(context.Background(), "testing")
	defer sp.End()
	p := tracecontext.NewTraceContext()
	carrier := opentracing.HTTPHeadersCarrier(http.Header{})
	if err := p.Inject(ctx, carrier); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.ExtractSpanContext(carrier); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseTraceParent(b *testing.B) {
	const header = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	for i := 0; i < b.N; i++ {
		if _, err := tracecontext.ParseTraceParent(header); err != nil {
			b.Fatal(err)
		}
	}
}
