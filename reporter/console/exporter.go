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

// Package console exports spans as structured zap log entries.
package console

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// Log messages written per span.
const (
	MsgSpan      = "span completed"
	MsgSpanError = "span completed with error"
)

// Exporter writes one log entry per span.
type Exporter struct {
	logger *zap.Logger
}

// New returns an Exporter writing to logger. A nil logger writes JSON to
// stdout using zap's production config.
func New(logger *zap.Logger) (*Exporter, error) {
	if logger == nil {
		var err error
		if logger, err = zap.NewProduction(); err != nil {
			return nil, err
		}
	}
	return &Exporter{logger: logger.Named("spans")}, nil
}

// ExportSpans implements tracecontext.Exporter.
func (e *Exporter) ExportSpans(_ context.Context, spans []tracecontext.SpanSnapshot) error {
	for _, s := range spans {
		fields := []zap.Field{
			zap.Stringer("trace_id", s.SpanContext.TraceID),
			zap.Stringer("span_id", s.SpanContext.SpanID),
			zap.String("operation", s.Name),
			zap.Stringer("kind", s.Kind),
			zap.Time("start", s.StartTime),
			zap.Duration("duration", s.Duration()),
			zap.String("service", s.Resource.ServiceName),
		}
		if s.HasParent() {
			fields = append(fields, zap.Stringer("parent_id", s.Parent.SpanID))
		}
		if s.Scope.Name != "" {
			fields = append(fields, zap.String("scope", s.Scope.Name))
		}
		if len(s.Attributes) > 0 {
			fields = append(fields, zap.Object("attributes", attributes(s.Attributes)))
		}
		if len(s.Events) > 0 {
			fields = append(fields, zap.Array("events", events(s.Events)))
		}
		if s.DroppedAttributes > 0 || s.DroppedEvents > 0 {
			fields = append(fields,
				zap.Int("dropped_attributes", s.DroppedAttributes),
				zap.Int("dropped_events", s.DroppedEvents),
			)
		}

		switch s.Status.Code {
		case tracecontext.StatusError:
			fields = append(fields, zap.String("status", s.Status.Description))
			e.logger.Error(MsgSpanError, fields...)
		default:
			fields = append(fields, zap.Stringer("status_code", s.Status.Code))
			e.logger.Info(MsgSpan, fields...)
		}
	}
	return nil
}

// Shutdown implements tracecontext.Exporter. Sync errors on stdout are
// platform noise and ignored.
func (e *Exporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}

type attributes []tracecontext.KeyValue

func (a attributes) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, kv := range a {
		switch kv.Value.Type() {
		case tracecontext.StringType:
			enc.AddString(kv.Key, kv.Value.AsString())
		case tracecontext.Int64Type:
			enc.AddInt64(kv.Key, kv.Value.AsInt64())
		case tracecontext.Float64Type:
			enc.AddFloat64(kv.Key, kv.Value.AsFloat64())
		case tracecontext.BoolType:
			enc.AddBool(kv.Key, kv.Value.AsBool())
		}
	}
	return nil
}

type events []tracecontext.Event

func (ev events) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, e := range ev {
		e := e
		if err := enc.AppendObject(zapcore.ObjectMarshalerFunc(func(oe zapcore.ObjectEncoder) error {
			oe.AddString("name", e.Name)
			oe.AddTime("time", e.Time)
			if len(e.Attributes) > 0 {
				return oe.AddObject("attributes", attributes(e.Attributes))
			}
			return nil
		})); err != nil {
			return err
		}
	}
	return nil
}
