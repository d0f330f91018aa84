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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

const defaultLogErrorInterval = 10 * time.Second

// TracerProvider owns the configuration shared by every Tracer it hands
// out: processors, sampler, identifier source, span limits and resource.
// Its processor list is fixed at construction.
type TracerProvider struct {
	processors  []SpanProcessor
	sampler     Sampler
	idGenerator IDGenerator
	limits      SpanLimits
	resource    Resource
	logger      Logger
	stateLogger *StateLogger
	isShutdown  atomic.Bool
}

// NewTracerProvider returns a provider configured by opts.
func NewTracerProvider(opts ...TracerProviderOption) *TracerProvider {
	o := &TracerProviderOptions{
		sampler:          AlwaysSample,
		idGenerator:      randomIDGenerator{},
		limits:           DefaultSpanLimits(),
		logger:           NewNopLogger(),
		logErrorInterval: defaultLogErrorInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	processors := o.processors
	for _, e := range o.syncers {
		processors = append(processors, NewSimpleSpanProcessor(e, o.logger))
	}

	return &TracerProvider{
		processors:  processors,
		sampler:     o.sampler,
		idGenerator: o.idGenerator,
		limits:      o.limits,
		resource:    o.resource,
		logger:      o.logger,
		stateLogger: NewStateLogger(o.logger, o.logErrorInterval),
	}
}

// Tracer returns a Tracer labelled with the given instrumentation scope.
// Tracers hold no state besides that label and may be created freely.
func (tp *TracerProvider) Tracer(name, version string) *Tracer {
	return &Tracer{
		provider: tp,
		scope:    InstrumentationScope{Name: name, Version: version},
	}
}

// ForceFlush exports all spans buffered by the provider's processors.
func (tp *TracerProvider) ForceFlush(ctx context.Context) error {
	var errs []error
	for _, p := range tp.processors {
		if err := p.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every processor. Spans started afterwards are
// not recorded.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if !tp.isShutdown.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, p := range tp.processors {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tracer creates spans on behalf of one instrumentation scope.
type Tracer struct {
	provider *TracerProvider
	scope    InstrumentationScope
}

// Scope returns the tracer's instrumentation scope.
func (t *Tracer) Scope() InstrumentationScope { return t.scope }

// Start creates a span whose parent is the span current in ctx and returns
// a derived context in which the new span is current. The caller must call
// End on the returned span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanStartOption) (context.Context, *Span) {
	var cfg spanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var parent SpanContext
	if !cfg.newRoot {
		parent = SpanContextFromContext(ctx)
	}
	if !parent.IsValid() {
		parent = SpanContext{}
	}

	p := t.provider
	traceID := parent.TraceID
	if !parent.IsValid() {
		traceID = p.idGenerator.NewTraceID()
	}
	isSampled := sampled(p.sampler, parent, traceID) && !p.isShutdown.Load()

	startTime := cfg.timestamp
	if startTime.IsZero() {
		startTime = time.Now()
	}

	s := &Span{
		tracer: t,
		sc: SpanContext{
			TraceID:    traceID,
			SpanID:     p.idGenerator.NewSpanID(),
			TraceFlags: parent.TraceFlags.WithSampled(isSampled),
		},
		parent:    parent,
		kind:      cfg.kind,
		name:      name,
		start:     startTime,
		recording: isSampled,
	}
	if isSampled {
		s.setAttributesLocked(cfg.attributes)
	}

	return ContextWithSpan(ctx, s), s
}

// InSpan runs body inside a new span that is current for the duration of
// the call. The span is ended on every exit path. When body returns an
// error the span status becomes StatusError and the error is returned
// unchanged; a panic is recorded the same way and then re-raised.
func (t *Tracer) InSpan(ctx context.Context, name string, body func(ctx context.Context, span *Span) error, opts ...SpanStartOption) error {
	_, err := InSpanResult(ctx, t, name, func(ctx context.Context, span *Span) (struct{}, error) {
		return struct{}{}, body(ctx, span)
	}, opts...)
	return err
}

// InSpanResult is InSpan for bodies that produce a value.
func InSpanResult[T any](ctx context.Context, t *Tracer, name string, body func(ctx context.Context, span *Span) (T, error), opts ...SpanStartOption) (result T, err error) {
	ctx, span := t.Start(ctx, name, opts...)
	defer func() {
		if r := recover(); r != nil {
			recordFailure(span, fmt.Errorf("panic: %v", r))
			span.End()
			panic(r)
		}
		span.End()
	}()

	result, err = body(ctx, span)
	if err != nil {
		recordFailure(span, err)
	}
	return result, err
}

func recordFailure(span *Span, err error) {
	if !span.lock("recordFailure") {
		return
	}
	defer span.mu.Unlock()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		span.addEventLocked("cancelled", time.Now(), nil)
	}
	span.recordErrorLocked(err, nil)
	span.status = Status{Code: StatusError, Description: err.Error()}
}
