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

package otbridge

import (
	"fmt"
	"time"

	otobserver "github.com/opentracing-contrib/go-observer"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// defaultEventName names events logged without an "event" field.
const defaultEventName = "log"

type spanImpl struct {
	tracer   *tracerImpl
	span     *tracecontext.Span
	observer otobserver.SpanObserver
}

func (s *spanImpl) SetOperationName(operationName string) opentracing.Span {
	if s.observer != nil {
		s.observer.OnSetOperationName(operationName)
	}
	s.span.SetName(operationName)
	return s
}

func (s *spanImpl) SetTag(key string, value interface{}) opentracing.Span {
	if s.observer != nil {
		s.observer.OnSetTag(key, value)
	}

	switch key {
	case string(ext.SamplingPriority):
		// the sampling decision is final once the span has started
		return s
	case string(ext.SpanKind):
		// kind can only be set on span creation
		return s
	case string(ext.Error):
		if isError(value) {
			s.span.SetStatus(tracecontext.StatusError, "")
		}
		return s
	}

	s.span.SetAttributes(tracecontext.Any(key, value))
	return s
}

func (s *spanImpl) LogKV(keyValues ...interface{}) {
	fields, err := log.InterleavedKVToFields(keyValues...)
	if err != nil {
		return
	}
	s.logFields(time.Now(), fields...)
}

func (s *spanImpl) LogFields(fields ...log.Field) {
	s.logFields(time.Now(), fields...)
}

// logFields turns one log record into one event. The "event" field names
// it, an "error.object" error is recorded as an exception.
func (s *spanImpl) logFields(t time.Time, fields ...log.Field) {
	name := defaultEventName
	attrs := make([]tracecontext.KeyValue, 0, len(fields))
	for _, field := range fields {
		switch field.Key() {
		case "event":
			name = fmt.Sprint(field.Value())
			continue
		case "error.object":
			if err, ok := field.Value().(error); ok {
				s.span.RecordError(err)
				continue
			}
		}
		attrs = append(attrs, tracecontext.Any(field.Key(), field.Value()))
	}
	if name == defaultEventName && len(attrs) == 0 {
		return
	}
	s.span.AddEventAt(name, t, attrs...)
}

func (s *spanImpl) LogEvent(event string) {
	s.Log(opentracing.LogData{
		Event: event,
	})
}

func (s *spanImpl) LogEventWithPayload(event string, payload interface{}) {
	s.Log(opentracing.LogData{
		Event:   event,
		Payload: payload,
	})
}

func (s *spanImpl) Log(ld opentracing.LogData) {
	if ld.Payload == nil {
		s.span.AddEventAt(ld.Event, ld.Timestamp)
		return
	}
	s.span.AddEventAt(ld.Event, ld.Timestamp, tracecontext.Any("payload", ld.Payload))
}

func (s *spanImpl) Finish() {
	s.FinishWithOptions(opentracing.FinishOptions{})
}

func (s *spanImpl) FinishWithOptions(opts opentracing.FinishOptions) {
	if s.observer != nil {
		s.observer.OnFinish(opts)
	}

	for _, lr := range opts.LogRecords {
		s.logFields(lr.Timestamp, lr.Fields...)
	}
	for _, ld := range opts.BulkLogData {
		s.Log(ld)
	}

	if !opts.FinishTime.IsZero() {
		s.span.End(tracecontext.WithEndTime(opts.FinishTime))
		return
	}
	s.span.End()
}

func (s *spanImpl) Tracer() opentracing.Tracer {
	return s.tracer
}

func (s *spanImpl) Context() opentracing.SpanContext {
	return SpanContext(s.span.SpanContext())
}

func (s *spanImpl) SetBaggageItem(key, val string) opentracing.Span {
	return s
}

func (s *spanImpl) BaggageItem(key string) string {
	return ""
}
