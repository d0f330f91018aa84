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

// Package recorder implements an in-memory Exporter, useful for tests and
// for inspecting spans in-process.
package recorder

import (
	"context"
	"sync"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// Exporter records every exported span in memory.
type Exporter struct {
	mtx      sync.Mutex
	spans    []tracecontext.SpanSnapshot
	shutdown bool
}

// New returns an empty Exporter.
func New() *Exporter {
	return &Exporter{}
}

// ExportSpans implements tracecontext.Exporter.
func (e *Exporter) ExportSpans(_ context.Context, spans []tracecontext.SpanSnapshot) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

// Shutdown implements tracecontext.Exporter.
func (e *Exporter) Shutdown(context.Context) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.shutdown = true
	return nil
}

// IsShutdown reports whether Shutdown was called.
func (e *Exporter) IsShutdown() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.shutdown
}

// Spans returns a copy of the recorded spans.
func (e *Exporter) Spans() []tracecontext.SpanSnapshot {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	out := make([]tracecontext.SpanSnapshot, len(e.spans))
	copy(out, e.spans)
	return out
}

// Flush returns and clears the recorded spans.
func (e *Exporter) Flush() []tracecontext.SpanSnapshot {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	out := e.spans
	e.spans = nil
	return out
}

// NewTracerProvider returns a provider exporting synchronously into a new
// Exporter. Options are applied after the exporter is registered.
func NewTracerProvider(opts ...tracecontext.TracerProviderOption) (*tracecontext.TracerProvider, *Exporter) {
	e := New()
	tp := tracecontext.NewTracerProvider(append([]tracecontext.TracerProviderOption{tracecontext.WithSyncer(e)}, opts...)...)
	return tp, e
}
