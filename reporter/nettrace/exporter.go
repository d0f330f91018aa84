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

// Package nettrace mirrors finished spans into golang.org/x/net/trace so
// recent requests can be browsed at /debug/requests.
package nettrace

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/trace"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// DefaultFamily groups spans on the /debug/requests page when no service
// name is set.
const DefaultFamily = "tracing"

// Exporter registers one net/trace entry per span.
type Exporter struct {
	newTrace func(family, title string) trace.Trace
}

// New returns an Exporter backed by trace.New.
func New() *Exporter {
	return &Exporter{newTrace: trace.New}
}

// ExportSpans implements tracecontext.Exporter.
func (e *Exporter) ExportSpans(_ context.Context, spans []tracecontext.SpanSnapshot) error {
	for _, s := range spans {
		family := s.Resource.ServiceName
		if family == "" {
			family = DefaultFamily
		}
		tr := e.newTrace(family, s.Name)
		tr.LazyPrintf("trace_id=%s span_id=%s kind=%s", s.SpanContext.TraceID, s.SpanContext.SpanID, s.Kind)
		if s.HasParent() {
			tr.LazyPrintf("parent_id=%s", s.Parent.SpanID)
		}
		for _, kv := range s.Attributes {
			tr.LazyPrintf("%s=%s", kv.Key, kv.Value.Emit())
		}
		for _, ev := range s.Events {
			if len(ev.Attributes) > 0 {
				tr.LazyPrintf("%s (payload %s)", ev.Name, payload(ev.Attributes))
			} else {
				tr.LazyPrintf("%s", ev.Name)
			}
		}
		if s.Status.Code == tracecontext.StatusError {
			tr.LazyPrintf("error: %s", s.Status.Description)
			tr.SetError()
		}
		tr.LazyPrintf("duration=%s", s.Duration())
		tr.Finish()
	}
	return nil
}

// Shutdown implements tracecontext.Exporter.
func (e *Exporter) Shutdown(context.Context) error { return nil }

type payload []tracecontext.KeyValue

func (p payload) String() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", kv.Key, kv.Value.Emit())
	}
	return b.String()
}
