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

// Package message carries span contexts inside a message body, as one
// string field of a JSON document.
//
// When the propagator writes a single key, as TraceContext does, the field
// holds that key's value, the traceparent string itself. Propagators writing
// several keys store them as a JSON object encoded in the field. Extraction
// accepts both forms.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	opentracing "github.com/opentracing/opentracing-go"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

// DefaultField is the body field holding the trace context.
const DefaultField = "trace_context"

// ErrNotAnObject is returned when a body to inject into is not a JSON object.
var ErrNotAnObject = errors.New("message: body is not a JSON object")

// Option configures the JSON helpers.
type Option func(o *options)

type options struct {
	field string
}

// WithField overrides the body field, DefaultField by default.
func WithField(name string) Option {
	return func(o *options) { o.field = name }
}

func newOptions(opts []Option) *options {
	o := &options{field: DefaultField}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Inject renders the span context current in ctx as a field value. An empty
// string is returned when no valid span context is current.
func Inject(ctx context.Context, p tracecontext.Propagator) (string, error) {
	carrier := opentracing.TextMapCarrier{}
	if err := p.Inject(ctx, carrier); err != nil {
		return "", err
	}
	switch len(carrier) {
	case 0:
		return "", nil
	case 1:
		for _, v := range carrier {
			return v, nil
		}
	}
	return sonic.MarshalString(carrier)
}

// ExtractSpanContext decodes a field value produced by Inject.
func ExtractSpanContext(p tracecontext.Propagator, value string) (tracecontext.SpanContext, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return tracecontext.SpanContext{}, opentracing.ErrSpanContextNotFound
	}
	carrier := opentracing.TextMapCarrier{}
	if strings.HasPrefix(value, "{") {
		if err := sonic.UnmarshalString(value, &carrier); err != nil {
			return tracecontext.SpanContext{}, fmt.Errorf("%w: %v", opentracing.ErrSpanContextCorrupted, err)
		}
	} else {
		fields := p.Fields()
		if len(fields) == 0 {
			return tracecontext.SpanContext{}, opentracing.ErrSpanContextNotFound
		}
		carrier[fields[0]] = value
	}
	return p.ExtractSpanContext(carrier)
}

// Extract returns ctx with the span context decoded from value as a remote
// parent. Absent or malformed values leave ctx untouched.
func Extract(ctx context.Context, p tracecontext.Propagator, value string) context.Context {
	sc, err := ExtractSpanContext(p, value)
	if err != nil {
		return ctx
	}
	return tracecontext.ContextWithRemoteSpanContext(ctx, sc)
}

// InjectJSON returns body with the trace context field set. body must be
// a JSON object; every other field is preserved.
func InjectJSON(ctx context.Context, p tracecontext.Propagator, body []byte, opts ...Option) ([]byte, error) {
	o := newOptions(opts)
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	if fields == nil {
		return nil, ErrNotAnObject
	}
	value, err := Inject(ctx, p)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return body, nil
	}
	encoded, err := sonic.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields[o.field] = encoded
	return sonic.Marshal(fields)
}

// ExtractJSONSpanContext reads the trace context field of a JSON body.
func ExtractJSONSpanContext(p tracecontext.Propagator, body []byte, opts ...Option) (tracecontext.SpanContext, error) {
	o := newOptions(opts)
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(body, &fields); err != nil {
		return tracecontext.SpanContext{}, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	raw, ok := fields[o.field]
	if !ok {
		return tracecontext.SpanContext{}, opentracing.ErrSpanContextNotFound
	}
	var value string
	if err := sonic.Unmarshal(raw, &value); err != nil {
		return tracecontext.SpanContext{}, fmt.Errorf("%w: %v", opentracing.ErrSpanContextCorrupted, err)
	}
	return ExtractSpanContext(p, value)
}

// ExtractJSON is the context form of ExtractJSONSpanContext. Absent or
// malformed data leaves ctx untouched.
func ExtractJSON(ctx context.Context, p tracecontext.Propagator, body []byte, opts ...Option) context.Context {
	sc, err := ExtractJSONSpanContext(p, body, opts...)
	if err != nil {
		return ctx
	}
	return tracecontext.ContextWithRemoteSpanContext(ctx, sc)
}
