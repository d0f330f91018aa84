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

// Package b3 propagates span contexts in Zipkin's B3 format, either as the
// multi-header x-b3-* set or as the single "b3" header.
package b3

import (
	"context"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go/model"
	zb3 "github.com/openzipkin/zipkin-go/propagation/b3"

	tracecontext "github.com/openzipkin-contrib/zipkin-go-tracecontext"
)

const (
	traceIDHeader      = zb3.TraceID
	spanIDHeader       = zb3.SpanID
	parentSpanIDHeader = zb3.ParentSpanID
	sampledHeader      = zb3.Sampled
	flagsHeader        = zb3.Flags
	singleHeader       = zb3.Context
)

// Propagator implements tracecontext.Propagator for B3.
type Propagator struct {
	single bool
}

// Option configures the Propagator.
type Option func(p *Propagator)

// InjectSingleHeader makes Inject write the single "b3" header instead of
// the x-b3-* set. Extract always accepts both.
func InjectSingleHeader() Option {
	return func(p *Propagator) { p.single = true }
}

// New returns a B3 propagator.
func New(opts ...Option) *Propagator {
	p := &Propagator{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fields implements tracecontext.Propagator.
func (p *Propagator) Fields() []string {
	if p.single {
		return []string{singleHeader}
	}
	return []string{traceIDHeader, spanIDHeader, parentSpanIDHeader, sampledHeader, flagsHeader}
}

// Inject implements tracecontext.Propagator.
func (p *Propagator) Inject(ctx context.Context, carrier opentracing.TextMapWriter) error {
	if carrier == nil {
		return opentracing.ErrInvalidCarrier
	}
	sc := tracecontext.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	msc := toModel(sc, tracecontext.SpanFromContext(ctx).Parent())

	if p.single {
		carrier.Set(singleHeader, zb3.BuildSingleHeader(msc))
		return nil
	}
	carrier.Set(traceIDHeader, msc.TraceID.String())
	carrier.Set(spanIDHeader, msc.ID.String())
	if msc.ParentID != nil {
		carrier.Set(parentSpanIDHeader, msc.ParentID.String())
	}
	if *msc.Sampled {
		carrier.Set(sampledHeader, "1")
	} else {
		carrier.Set(sampledHeader, "0")
	}
	return nil
}

// Extract implements tracecontext.Propagator.
func (p *Propagator) Extract(ctx context.Context, carrier opentracing.TextMapReader) context.Context {
	sc, err := p.ExtractSpanContext(carrier)
	if err != nil {
		return ctx
	}
	return tracecontext.ContextWithRemoteSpanContext(ctx, sc)
}

// ExtractSpanContext implements tracecontext.Propagator. A carrier holding
// only a sampling decision yields opentracing.ErrSpanContextNotFound since
// there is no parent to attach to.
func (p *Propagator) ExtractSpanContext(carrier opentracing.TextMapReader) (tracecontext.SpanContext, error) {
	if carrier == nil {
		return tracecontext.SpanContext{}, opentracing.ErrInvalidCarrier
	}

	var (
		traceID      string
		spanID       string
		parentSpanID string
		sampled      string
		flags        string
		single       string
	)

	err := carrier.ForeachKey(func(key, val string) error {
		switch strings.ToLower(key) {
		case traceIDHeader:
			traceID = val
		case spanIDHeader:
			spanID = val
		case parentSpanIDHeader:
			parentSpanID = val
		case sampledHeader:
			sampled = val
		case flagsHeader:
			flags = val
		case singleHeader:
			single = val
		}
		return nil
	})
	if err != nil {
		return tracecontext.SpanContext{}, err
	}

	var msc *model.SpanContext
	switch {
	case single != "":
		msc, err = zb3.ParseSingleHeader(single)
	case traceID != "" || spanID != "" || sampled != "" || flags != "":
		msc, err = zb3.ParseHeaders(traceID, spanID, parentSpanID, sampled, flags)
	default:
		return tracecontext.SpanContext{}, opentracing.ErrSpanContextNotFound
	}
	if err != nil {
		return tracecontext.SpanContext{}, err
	}
	sc := fromModel(*msc)
	if !sc.IsValid() {
		return tracecontext.SpanContext{}, opentracing.ErrSpanContextNotFound
	}
	return sc, nil
}

func toModel(sc, parent tracecontext.SpanContext) model.SpanContext {
	sampled := sc.IsSampled()
	msc := model.SpanContext{
		TraceID: model.TraceID{High: sc.TraceID.High(), Low: sc.TraceID.Low()},
		ID:      model.ID(sc.SpanID.Uint64()),
		Sampled: &sampled,
	}
	if parent.IsValid() {
		id := model.ID(parent.SpanID.Uint64())
		msc.ParentID = &id
	}
	return msc
}

func fromModel(msc model.SpanContext) tracecontext.SpanContext {
	sampled := msc.Debug || (msc.Sampled != nil && *msc.Sampled)
	return tracecontext.SpanContext{
		TraceID:    tracecontext.TraceIDFromUint64(msc.TraceID.High, msc.TraceID.Low),
		SpanID:     tracecontext.SpanIDFromUint64(uint64(msc.ID)),
		TraceFlags: tracecontext.TraceFlags(0).WithSampled(sampled),
		Remote:     true,
	}
}
