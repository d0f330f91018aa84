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
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// ErrSpanAlreadyEnded is reported through the provider's Logger when a span
// is mutated after End. The mutation itself is silently ignored.
var ErrSpanAlreadyEnded = errors.New("tracecontext: span already ended")

// SpanKind describes the relationship of a span to its callers and callees.
type SpanKind int

// Available SpanKind values
const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	case SpanKindProducer:
		return "producer"
	case SpanKindConsumer:
		return "consumer"
	}
	return "internal"
}

// StatusCode is the outcome of a span.
type StatusCode int

// Available StatusCode values
const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	}
	return "unset"
}

// Status is a code with an optional description.
type Status struct {
	Code        StatusCode
	Description string
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes []KeyValue
}

// Span records a single unit of work. A Span is owned by the flow that
// started it; once End is called every mutating method becomes a no-op.
// A nil *Span is valid and does nothing.
type Span struct {
	tracer *Tracer

	mu                sync.Mutex
	sc                SpanContext
	parent            SpanContext
	kind              SpanKind
	name              string
	start             time.Time
	end               time.Time
	attrIndex         map[string]int
	attributes        []KeyValue
	droppedAttributes int
	events            []Event
	droppedEvents     int
	status            Status
	ended             bool
	recording         bool
}

// SpanContext returns the span's identity.
func (s *Span) SpanContext() SpanContext {
	if s == nil {
		return SpanContext{}
	}
	return s.sc
}

// Parent returns the span context this span was started under.
func (s *Span) Parent() SpanContext {
	if s == nil {
		return SpanContext{}
	}
	return s.parent
}

// IsRecording reports whether mutations are being recorded: the span is
// sampled and has not ended.
func (s *Span) IsRecording() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording && !s.ended
}

// SetName replaces the span name.
func (s *Span) SetName(name string) {
	if !s.lock("SetName") {
		return
	}
	defer s.mu.Unlock()
	s.name = name
}

// SetAttributes records attributes; the last write for a key wins.
func (s *Span) SetAttributes(kvs ...KeyValue) {
	if !s.lock("SetAttributes") {
		return
	}
	defer s.mu.Unlock()
	s.setAttributesLocked(kvs)
}

func (s *Span) setAttributesLocked(kvs []KeyValue) {
	limit := s.tracer.provider.limits.AttributeCountLimit
	for _, kv := range kvs {
		if !kv.Valid() {
			continue
		}
		if i, ok := s.attrIndex[kv.Key]; ok {
			s.attributes[i] = kv
			continue
		}
		if limit >= 0 && len(s.attributes) >= limit {
			s.droppedAttributes++
			continue
		}
		if s.attrIndex == nil {
			s.attrIndex = make(map[string]int)
		}
		s.attrIndex[kv.Key] = len(s.attributes)
		s.attributes = append(s.attributes, kv)
	}
}

// AddEvent appends a timestamped event. Once the configured event limit is
// reached new events are dropped and counted.
func (s *Span) AddEvent(name string, attrs ...KeyValue) {
	if !s.lock("AddEvent") {
		return
	}
	defer s.mu.Unlock()
	s.addEventLocked(name, time.Now(), attrs)
}

// AddEventAt is AddEvent with an explicit timestamp.
func (s *Span) AddEventAt(name string, t time.Time, attrs ...KeyValue) {
	if !s.lock("AddEvent") {
		return
	}
	defer s.mu.Unlock()
	if t.IsZero() {
		t = time.Now()
	}
	s.addEventLocked(name, t, attrs)
}

func (s *Span) addEventLocked(name string, t time.Time, attrs []KeyValue) {
	limit := s.tracer.provider.limits.EventCountLimit
	if limit >= 0 && len(s.events) >= limit {
		s.droppedEvents++
		return
	}
	e := Event{Name: name, Time: t}
	if len(attrs) > 0 {
		e.Attributes = append([]KeyValue(nil), attrs...)
	}
	s.events = append(s.events, e)
}

// SetStatus sets the span status. The description is only kept for
// StatusError.
func (s *Span) SetStatus(code StatusCode, description string) {
	if !s.lock("SetStatus") {
		return
	}
	defer s.mu.Unlock()
	if code != StatusError {
		description = ""
	}
	s.status = Status{Code: code, Description: description}
}

// RecordError adds an "exception" event describing err. It does not change
// the status.
func (s *Span) RecordError(err error, attrs ...KeyValue) {
	if err == nil {
		return
	}
	if !s.lock("RecordError") {
		return
	}
	defer s.mu.Unlock()
	s.recordErrorLocked(err, attrs)
}

func (s *Span) recordErrorLocked(err error, attrs []KeyValue) {
	attrs = append([]KeyValue{
		String("exception.type", errorType(err)),
		String("exception.message", err.Error()),
	}, attrs...)
	s.addEventLocked("exception", time.Now(), attrs)
}

func errorType(err error) string {
	t := reflect.TypeOf(err)
	if t.PkgPath() == "" && t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// End completes the span and hands a snapshot to every processor. Only the
// first call has an effect.
func (s *Span) End(opts ...EndOption) {
	if s == nil {
		return
	}
	var cfg endConfig
	for _, o := range opts {
		o(&cfg)
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.end = cfg.timestamp
	if s.end.IsZero() {
		s.end = time.Now()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, p := range s.tracer.provider.processors {
		p.OnEnd(snap)
	}
}

// lock acquires the span mutex and reports whether the span accepts
// mutation. When it returns false the mutex is not held.
func (s *Span) lock(op string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		if s.recording {
			s.tracer.provider.stateLogger.LogError(fmt.Errorf("%w: %s on %q", ErrSpanAlreadyEnded, op, s.nameUnsafe()))
		}
		return false
	}
	if !s.recording {
		s.mu.Unlock()
		return false
	}
	return true
}

// nameUnsafe reads the name without locking; only used once the span has
// ended and the name can no longer change.
func (s *Span) nameUnsafe() string { return s.name }

func (s *Span) snapshotLocked() SpanSnapshot {
	snap := SpanSnapshot{
		Name:              s.name,
		SpanContext:       s.sc,
		Parent:            s.parent,
		Kind:              s.kind,
		StartTime:         s.start,
		EndTime:           s.end,
		DroppedAttributes: s.droppedAttributes,
		DroppedEvents:     s.droppedEvents,
		Status:            s.status,
		Scope:             s.tracer.scope,
		Resource:          s.tracer.provider.resource,
	}
	if len(s.attributes) > 0 {
		snap.Attributes = append([]KeyValue(nil), s.attributes...)
	}
	if len(s.events) > 0 {
		snap.Events = make([]Event, len(s.events))
		for i, e := range s.events {
			snap.Events[i] = Event{Name: e.Name, Time: e.Time, Attributes: append([]KeyValue(nil), e.Attributes...)}
		}
	}
	return snap
}

// EndOption configures End.
type EndOption func(*endConfig)

type endConfig struct {
	timestamp time.Time
}

// WithEndTime overrides the end timestamp.
func WithEndTime(t time.Time) EndOption {
	return func(c *endConfig) { c.timestamp = t }
}
