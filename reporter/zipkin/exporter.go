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

// Package zipkin exports spans to a Zipkin collector in the v2 model
// through a zipkin-go reporter.
package zipkin

import (
	"context"
	"strconv"
	"strings"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// Tag keys added to converted spans.
const (
	TagError               = "error"
	TagStatusCode          = "otel.status_code"
	TagScopeName           = "otel.scope.name"
	TagScopeVersion        = "otel.scope.version"
	TagServiceVersion      = "service.version"
	TagDroppedAttributes   = "otel.dropped_attributes_count"
	TagDroppedEvents       = "otel.dropped_events_count"
	defaultCollectorSuffix = "/api/v2/spans"
)

// Option sets a parameter for the Exporter.
type Option func(e *Exporter)

// LocalEndpoint overrides the endpoint derived from the span's resource.
func LocalEndpoint(ep *model.Endpoint) Option {
	return func(e *Exporter) { e.endpoint = ep }
}

// Exporter converts snapshots to zipkin-go span models and hands them to a
// reporter.Reporter.
type Exporter struct {
	reporter reporter.Reporter
	endpoint *model.Endpoint
}

// New returns an Exporter sending to rep. Shutdown closes rep.
func New(rep reporter.Reporter, opts ...Option) *Exporter {
	e := &Exporter{reporter: rep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewHTTP returns an Exporter posting JSON to a Zipkin collector. A bare
// host URL gets the v2 spans path appended.
func NewHTTP(url string, opts ...Option) *Exporter {
	if !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://"), "/") {
		url += defaultCollectorSuffix
	}
	return New(zipkinhttp.NewReporter(url), opts...)
}

// ExportSpans implements tracecontext.Exporter. The reporter queues spans
// itself so this never blocks on the network.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracecontext.SpanSnapshot) error {
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.reporter.Send(e.convert(s))
	}
	return nil
}

// Shutdown implements tracecontext.Exporter.
func (e *Exporter) Shutdown(context.Context) error {
	return e.reporter.Close()
}

func (e *Exporter) convert(s tracecontext.SpanSnapshot) model.SpanModel {
	sampled := s.SpanContext.IsSampled()
	sm := model.SpanModel{
		SpanContext: model.SpanContext{
			TraceID: model.TraceID{High: s.SpanContext.TraceID.High(), Low: s.SpanContext.TraceID.Low()},
			ID:      model.ID(s.SpanContext.SpanID.Uint64()),
			Sampled: &sampled,
		},
		Name:      s.Name,
		Kind:      kind(s.Kind),
		Timestamp: s.StartTime,
		Duration:  s.Duration(),
		Tags:      make(map[string]string, len(s.Attributes)+4),
	}
	if s.HasParent() {
		parentID := model.ID(s.Parent.SpanID.Uint64())
		sm.ParentID = &parentID
	}

	sm.LocalEndpoint = e.endpoint
	if sm.LocalEndpoint == nil && s.Resource.ServiceName != "" {
		sm.LocalEndpoint = &model.Endpoint{ServiceName: s.Resource.ServiceName}
	}

	for _, kv := range s.Attributes {
		sm.Tags[kv.Key] = kv.Value.Emit()
	}
	for _, ev := range s.Events {
		sm.Annotations = append(sm.Annotations, model.Annotation{
			Timestamp: ev.Time,
			Value:     annotationValue(ev),
		})
	}

	switch s.Status.Code {
	case tracecontext.StatusError:
		sm.Tags[TagStatusCode] = "ERROR"
		sm.Tags[TagError] = s.Status.Description
		if sm.Tags[TagError] == "" {
			sm.Tags[TagError] = "true"
		}
	case tracecontext.StatusOK:
		sm.Tags[TagStatusCode] = "OK"
	}
	if s.Scope.Name != "" {
		sm.Tags[TagScopeName] = s.Scope.Name
	}
	if s.Scope.Version != "" {
		sm.Tags[TagScopeVersion] = s.Scope.Version
	}
	if s.Resource.ServiceVersion != "" {
		sm.Tags[TagServiceVersion] = s.Resource.ServiceVersion
	}
	if s.DroppedAttributes > 0 {
		sm.Tags[TagDroppedAttributes] = strconv.Itoa(s.DroppedAttributes)
	}
	if s.DroppedEvents > 0 {
		sm.Tags[TagDroppedEvents] = strconv.Itoa(s.DroppedEvents)
	}
	return sm
}

// annotationValue flattens an event: Zipkin annotations carry no
// attributes.
func annotationValue(ev tracecontext.Event) string {
	if len(ev.Attributes) == 0 {
		return ev.Name
	}
	var b strings.Builder
	b.WriteString(ev.Name)
	for _, kv := range ev.Attributes {
		b.WriteByte(' ')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value.Emit())
	}
	return b.String()
}

func kind(k tracecontext.SpanKind) model.Kind {
	switch k {
	case tracecontext.SpanKindServer:
		return model.Server
	case tracecontext.SpanKindClient:
		return model.Client
	case tracecontext.SpanKindProducer:
		return model.Producer
	case tracecontext.SpanKindConsumer:
		return model.Consumer
	}
	return model.Undetermined
}
