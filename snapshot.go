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

import "time"

// InstrumentationScope names the library that created a span.
type InstrumentationScope struct {
	Name    string
	Version string
}

// Resource describes the service emitting spans.
type Resource struct {
	ServiceName    string
	ServiceVersion string
}

// SpanSnapshot is the read-only copy of an ended span handed to processors
// and exporters. It shares no memory with the live span.
type SpanSnapshot struct {
	Name              string
	SpanContext       SpanContext
	Parent            SpanContext
	Kind              SpanKind
	StartTime         time.Time
	EndTime           time.Time
	Attributes        []KeyValue
	DroppedAttributes int
	Events            []Event
	DroppedEvents     int
	Status            Status
	Scope             InstrumentationScope
	Resource          Resource
}

// Duration returns EndTime - StartTime.
func (s SpanSnapshot) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// Attribute looks up an attribute by key.
func (s SpanSnapshot) Attribute(key string) (Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// HasParent reports whether the span was started under another span.
func (s SpanSnapshot) HasParent() bool { return s.Parent.SpanID.IsValid() }
